package payment

// Details carries the kind-specific payload of a payment.
type Details interface {
	detailsKind() Kind
}

// Bolt11Details describes a Lightning payment against a bolt11 invoice.
type Bolt11Details struct {
	PaymentHash string `json:"payment_hash"`
	Preimage    string `json:"preimage,omitempty"`
	Invoice     string `json:"invoice,omitempty"`
}

func (Bolt11Details) detailsKind() Kind { return KindBolt11 }

// Bolt12Details describes a Lightning payment against a bolt12 offer.
// PayerKey identifies the payer of an incoming offer payment; OfferID
// identifies the offer an outgoing blinded payment was made against.
type Bolt12Details struct {
	OfferID   string `json:"offer_id,omitempty"`
	PayerKey  string `json:"payer_key,omitempty"`
	PayerNote string `json:"payer_note,omitempty"`
}

func (Bolt12Details) detailsKind() Kind { return KindBolt12 }

// SwapInDetails describes a legacy on-chain swap-in.
type SwapInDetails struct {
	Address string `json:"address,omitempty"`
}

func (SwapInDetails) detailsKind() Kind { return KindLegacySwapIn }

// PayToOpenDetails describes a legacy pay-to-open payment.
type PayToOpenDetails struct {
	PaymentHash string `json:"payment_hash,omitempty"`
}

func (PayToOpenDetails) detailsKind() Kind { return KindLegacyPayToOpen }

// ChannelOpenDetails describes an incoming channel-open payment. The
// liquidity purchase, when known, is folded in from the outgoing purchase
// record sharing the funding transaction.
type ChannelOpenDetails struct {
	ChannelID          string `json:"channel_id,omitempty"`
	LiquidityAmountSat int64  `json:"liquidity_amount_sat,omitempty"`
	LiquidityFeesMsat  int64  `json:"liquidity_fees_msat,omitempty"`
}

func (ChannelOpenDetails) detailsKind() Kind { return KindChannelOpen }

// LiquidityDetails describes an inbound-liquidity purchase.
type LiquidityDetails struct {
	PurchaseAmountSat int64 `json:"purchase_amount_sat"`
	ServiceFeesMsat   int64 `json:"service_fees_msat,omitempty"`
	MiningFeesSat     int64 `json:"mining_fees_sat,omitempty"`
}

func (LiquidityDetails) detailsKind() Kind { return KindLiquidityManual }

// SpendDetails describes an outgoing on-chain spend.
type SpendDetails struct {
	Address string `json:"address,omitempty"`
}

func (SpendDetails) detailsKind() Kind { return KindOnChainSpend }
