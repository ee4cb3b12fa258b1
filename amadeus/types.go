package amadeus

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Price carries monetary amounts for an offer. Amounts are decimals, never
// binary floats; Amadeus quotes them as JSON strings and decimal round-trips
// that encoding.
type Price struct {
	Total    decimal.Decimal `json:"total"`
	Base     decimal.Decimal `json:"base"`
	Currency string          `json:"currency"`
}

// Taxes returns the non-base portion of the total.
func (p Price) Taxes() decimal.Decimal {
	return p.Total.Sub(p.Base)
}

// Endpoint is one end of a segment: an airport and a local timestamp.
type Endpoint struct {
	IATACode string `json:"iataCode"`
	At       string `json:"at"`
}

// Aircraft identifies the equipment operating a segment.
type Aircraft struct {
	Code string `json:"code"`
}

// Segment is a single flight leg.
type Segment struct {
	ID            string   `json:"id"`
	CarrierCode   string   `json:"carrierCode"`
	Number        string   `json:"number"`
	Departure     Endpoint `json:"departure"`
	Arrival       Endpoint `json:"arrival"`
	Duration      string   `json:"duration"` // ISO-8601, e.g. PT4H5M
	Aircraft      Aircraft `json:"aircraft"`
	NumberOfStops int      `json:"numberOfStops"`
}

// Itinerary is an ordered sequence of segments in one direction.
type Itinerary struct {
	Duration string    `json:"duration"`
	Segments []Segment `json:"segments"`
}

// CheckedBags is a baggage allowance entry.
type CheckedBags struct {
	Quantity int `json:"quantity"`
}

// FareSegmentDetail is the per-segment fare breakdown for one traveler.
type FareSegmentDetail struct {
	SegmentID           string       `json:"segmentId"`
	Cabin               string       `json:"cabin"`
	Class               string       `json:"class"`
	FareBasis           string       `json:"fareBasis"`
	BrandedFare         string       `json:"brandedFare,omitempty"`
	IncludedCheckedBags *CheckedBags `json:"includedCheckedBags,omitempty"`
}

// TravelerPricing is the fare breakdown for one traveler on an offer.
type TravelerPricing struct {
	TravelerID           string              `json:"travelerId"`
	TravelerType         string              `json:"travelerType"`
	Price                Price               `json:"price"`
	FareDetailsBySegment []FareSegmentDetail `json:"fareDetailsBySegment"`
}

// FlightOffer is one priced, bookable flight combination. The ID is an
// opaque backend token; it and the raw offer payload must be round-tripped
// verbatim into pricing and order-creation calls.
type FlightOffer struct {
	ID                      string            `json:"id"`
	Price                   Price             `json:"price"`
	Itineraries             []Itinerary       `json:"itineraries"`
	TravelerPricings        []TravelerPricing `json:"travelerPricings,omitempty"`
	ValidatingAirlineCodes  []string          `json:"validatingAirlineCodes,omitempty"`
	LastTicketingDate       string            `json:"lastTicketingDate,omitempty"`
	InstantTicketingRequired bool             `json:"instantTicketingRequired,omitempty"`
	PaymentCardRequired     bool              `json:"paymentCardRequired,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON keeps the raw offer payload so it can be forwarded to the
// pricing and booking endpoints without reconstruction.
func (o *FlightOffer) UnmarshalJSON(data []byte) error {
	type alias FlightOffer
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*o = FlightOffer(decoded)
	o.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the verbatim backend payload when available.
func (o FlightOffer) MarshalJSON() ([]byte, error) {
	if len(o.raw) > 0 {
		return o.raw, nil
	}
	type alias FlightOffer
	return json.Marshal(alias(o))
}

// BookingRequirements lists what the backend needs before an order can be
// created for a priced offer.
type BookingRequirements struct {
	EmailAddressRequired      bool `json:"emailAddressRequired"`
	MobilePhoneNumberRequired bool `json:"mobilePhoneNumberRequired"`
	InvoiceAddressRequired    bool `json:"invoiceAddressRequired"`
}

// PricedOffer is the pricing-verification result for one offer.
type PricedOffer struct {
	FlightOffers        []FlightOffer        `json:"flightOffers"`
	BookingRequirements *BookingRequirements `json:"bookingRequirements,omitempty"`
}

// TravelerName holds a traveler's name as the backend expects it.
type TravelerName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Phone is a traveler contact number.
type Phone struct {
	DeviceType         string `json:"deviceType"`
	CountryCallingCode string `json:"countryCallingCode"`
	Number             string `json:"number"`
}

// Contact is traveler contact information.
type Contact struct {
	EmailAddress string  `json:"emailAddress"`
	Phones       []Phone `json:"phones,omitempty"`
}

// Document is a travel document (passport or identity card).
type Document struct {
	DocumentType     string `json:"documentType"`
	Number           string `json:"number"`
	ExpiryDate       string `json:"expiryDate,omitempty"`
	IssuanceCountry  string `json:"issuanceCountry,omitempty"`
	Nationality      string `json:"nationality,omitempty"`
	Holder           bool   `json:"holder"`
}

// Traveler is one passenger on an order.
type Traveler struct {
	ID          string       `json:"id"`
	DateOfBirth string       `json:"dateOfBirth"`
	Name        TravelerName `json:"name"`
	Gender      string       `json:"gender,omitempty"`
	Contact     *Contact     `json:"contact,omitempty"`
	Documents   []Document   `json:"documents,omitempty"`
}

// PaymentCard holds card details for an order payment.
type PaymentCard struct {
	VendorCode string `json:"vendorCode"`
	CardNumber string `json:"cardNumber"`
	ExpiryDate string `json:"expiryDate"`
	HolderName string `json:"holderName,omitempty"`
}

// Payment is the form of payment attached to an order.
type Payment struct {
	Method string       `json:"method"`
	Card   *PaymentCard `json:"creditCard,omitempty"`
}

// AssociatedRecord links an order to an airline record locator.
type AssociatedRecord struct {
	Reference        string `json:"reference"`
	OriginSystemCode string `json:"originSystemCode,omitempty"`
}

// Order is a created flight order (a booking or a hold).
type Order struct {
	ID                string             `json:"id"`
	AssociatedRecords []AssociatedRecord `json:"associatedRecords,omitempty"`
}

// Reference returns the user-facing booking reference: the first airline
// record locator when present, otherwise the order id.
func (o Order) Reference() string {
	if len(o.AssociatedRecords) > 0 && o.AssociatedRecords[0].Reference != "" {
		return o.AssociatedRecords[0].Reference
	}
	return o.ID
}

// Location is an airport (or city) returned by keyword lookup.
type Location struct {
	Name     string `json:"name"`
	IATACode string `json:"iataCode"`
	SubType  string `json:"subType"`
}
