package domain

// Role 调用者角色
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Viewer 当前请求的身份，由调用方显式传入
type Viewer struct {
	UserID      string `json:"user_id"`
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// IsAdmin 是否具备审核权限
func (v Viewer) IsAdmin() bool { return v.Role == RoleAdmin }

// Participates 是否为交易的付款方或收款方
func (v Viewer) Participates(t *Transaction) bool {
	if v.AccountID == "" {
		return false
	}
	return t.SenderAccountID == v.AccountID || t.ReceiverAccountID == v.AccountID
}
