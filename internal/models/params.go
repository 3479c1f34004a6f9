package models

// WebhookParams mirrors the upstream provider's watch configuration: which
// transaction types are subscribed and which account addresses are watched.
// A target address appears here if and only if its owner still has credit
// headroom as last observed by this system.
type WebhookParams struct {
	ID               string   `json:"id"`
	TransactionTypes []string `json:"transactionTypes"`
	AccountAddresses []string `json:"accountAddresses"`
}

// WithoutAddress returns a copy of the params with addr removed from the
// watched address list. Other addresses are never affected.
func (p *WebhookParams) WithoutAddress(addr string) *WebhookParams {
	trimmed := make([]string, 0, len(p.AccountAddresses))
	for _, a := range p.AccountAddresses {
		if a != addr {
			trimmed = append(trimmed, a)
		}
	}

	return &WebhookParams{
		ID:               p.ID,
		TransactionTypes: append([]string(nil), p.TransactionTypes...),
		AccountAddresses: trimmed,
	}
}

// Watches reports whether addr is currently in the mirrored watch list
func (p *WebhookParams) Watches(addr string) bool {
	for _, a := range p.AccountAddresses {
		if a == addr {
			return true
		}
	}
	return false
}
