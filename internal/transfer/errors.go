package transfer

import "errors"

// Причины отказа в переводе. Валидатор возвращает первую сработавшую.
var (
	ErrTransferBlocked       = errors.New("transfers are blocked until the conversion fee is paid")
	ErrInvalidAmount         = errors.New("amount must be a positive number")
	ErrUnsupportedCurrency   = errors.New("currency is not supported")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInvalidAccountFormat  = errors.New("account number does not match the recipient country format")
	ErrInvalidRoutingNumber  = errors.New("routing number must be exactly 9 digits")
	ErrAccountNotFound       = errors.New("recipient account not found")
	ErrAccountInactive       = errors.New("recipient account is not active")
	ErrSelfTransfer          = errors.New("cannot transfer to your own account")
	ErrRecipientNameMismatch = errors.New("recipient name does not match the account holder")
)

// ErrTransferFailed оборачивает любую ошибку хранилища при применении перевода
var ErrTransferFailed = errors.New("transfer failed")

// Reason возвращает машиночитаемый код причины отказа
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTransferBlocked):
		return "transfer_blocked"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrUnsupportedCurrency):
		return "unsupported_currency"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidAccountFormat):
		return "invalid_account_format"
	case errors.Is(err, ErrInvalidRoutingNumber):
		return "invalid_routing_number"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrRecipientNameMismatch):
		return "recipient_name_mismatch"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	default:
		return ""
	}
}
