package settings

// Role names a system function played by a ledger account.
type Role string

const (
	RoleCash               Role = "cash"
	RoleAccountsReceivable Role = "accounts_receivable"
	RoleAccountsPayable    Role = "accounts_payable"
	RoleGSTInput           Role = "gst_input"
	RoleGSTOutput          Role = "gst_output"
	RoleGSTControl         Role = "gst_control"
	RoleWHTPayable         Role = "wht_payable"
	RoleForexGain          Role = "unrealized_forex_gain"
	RoleForexLoss          Role = "unrealized_forex_loss"
)

// KeyFunctionalCurrency stores the ledger's functional currency code.
const KeyFunctionalCurrency = "functional_currency"

// DefaultFunctionalCurrency applies when no setting is stored.
const DefaultFunctionalCurrency = "SGD"

type roleDefault struct {
	key  string
	code string
}

var roleDefaults = map[Role]roleDefault{
	RoleCash:               {key: "default_cash_account_code", code: "1010"},
	RoleAccountsReceivable: {key: "default_ar_account_code", code: "1200"},
	RoleAccountsPayable:    {key: "default_ap_account_code", code: "2100"},
	RoleGSTInput:           {key: "default_gst_input_account_code", code: "1300"},
	RoleGSTOutput:          {key: "default_gst_output_account_code", code: "2200"},
	RoleGSTControl:         {key: "default_gst_control_account_code", code: "2210"},
	RoleWHTPayable:         {key: "default_wht_payable_account_code", code: "2300"},
	RoleForexGain:          {key: "default_unrealized_forex_gain_account_code", code: "7100"},
	RoleForexLoss:          {key: "default_unrealized_forex_loss_account_code", code: "7200"},
}

// KeyFor returns the settings key and fallback account code for a role.
func KeyFor(role Role) (key, fallback string, ok bool) {
	d, ok := roleDefaults[role]
	return d.key, d.code, ok
}
