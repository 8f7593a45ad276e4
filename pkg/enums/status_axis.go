package enums

// StatusAxis names which order status field a history entry describes.
type StatusAxis string

const (
	StatusAxisDelivery StatusAxis = "delivery"
	StatusAxisPayment  StatusAxis = "payment"
)

func (a StatusAxis) IsValid() bool {
	return a == StatusAxisDelivery || a == StatusAxisPayment
}
