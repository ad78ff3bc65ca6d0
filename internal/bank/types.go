package bank

// Transaction is the normalized payload routed through the gateway.
type Transaction struct {
	TransactionID string  `json:"transaction_id,omitempty"`
	SourceAccount string  `json:"source_account"`
	TargetAccount string  `json:"target_account"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
	Description   string  `json:"description,omitempty"`
	Timestamp     string  `json:"timestamp,omitempty"`
}

// InterbankTransfer is the wire format exchanged with partner banks.
type InterbankTransfer struct {
	SenderBank      string  `json:"sender_bank"`
	SenderAccount   string  `json:"sender_account"`
	ReceiverAccount string  `json:"receiver_account"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Description     string  `json:"description,omitempty"`
	ReferenceID     string  `json:"reference_id,omitempty"`
	Timestamp       string  `json:"timestamp,omitempty"`
}

// IncomingTransfer is an interbank transfer converted to the core bank's
// inbound format.
type IncomingTransfer struct {
	SourceAccount     string  `json:"source_account"`
	TargetAccount     string  `json:"target_account"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	Description       string  `json:"description,omitempty"`
	ExternalReference string  `json:"external_reference,omitempty"`
	SenderBank        string  `json:"sender_bank,omitempty"`
}

// CustomerRecord is the customer profile forwarded on account sync.
type CustomerRecord struct {
	CustomerID   *int64 `json:"customer_id,omitempty"`
	FullName     string `json:"full_name"`
	IDPortofolio string `json:"id_portofolio"`
	BirthDate    string `json:"birth_date"`
	Address      string `json:"address"`
	NIK          string `json:"NIK"`
	PhoneNumber  string `json:"phone_number"`
	Email        string `json:"email"`
	PIN          int    `json:"PIN"`
}
