package flightagent

import (
	"fmt"
	"strings"
	"time"

	"github.com/aerodesk/flightagent/amadeus"
)

// airlineNames maps common carrier codes to display names. Unknown codes
// fall back to the code itself.
var airlineNames = map[string]string{
	"AA": "American Airlines",
	"AF": "Air France",
	"BA": "British Airways",
	"DL": "Delta Air Lines",
	"EK": "Emirates",
	"ET": "Ethiopian Airlines",
	"KL": "KLM",
	"LH": "Lufthansa",
	"QR": "Qatar Airways",
	"TK": "Turkish Airlines",
	"UA": "United Airlines",
}

func airlineName(code string) string {
	if name, ok := airlineNames[code]; ok {
		return name
	}
	return code
}

// formatDuration renders an ISO-8601 duration like PT4H5M as "4h 5m".
func formatDuration(iso string) string {
	s := strings.TrimPrefix(iso, "PT")
	s = strings.ReplaceAll(s, "H", "h ")
	s = strings.ReplaceAll(s, "M", "m")
	return strings.TrimSpace(s)
}

// formatTime renders the backend's local timestamps ("2026-09-01T08:30:00")
// as "Mon, Sep 1 08:30". Unparseable values pass through unchanged.
func formatTime(at string) string {
	t, err := time.Parse("2006-01-02T15:04:05", at)
	if err != nil {
		return at
	}
	return t.Format("Mon, Jan 2 15:04")
}

// formatFlightOptions renders the digest message shown to the user after a
// successful search. Options are numbered 1-based to match select_flight.
func formatFlightOptions(options []FlightOption) string {
	if len(options) == 0 {
		return "No flights found matching your criteria."
	}

	var b strings.Builder
	b.WriteString("Here are the available flights:\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s %s\n", i+1, opt.Price.StringFixed(2), opt.Currency)
		for _, seg := range opt.Segments {
			fmt.Fprintf(&b, "   %s %s%s: %s -> %s\n", airlineName(seg.Airline), seg.Airline, seg.FlightNumber, seg.Origin, seg.Destination)
			fmt.Fprintf(&b, "   Depart %s, arrive %s", formatTime(seg.Departure), formatTime(seg.Arrival))
			if seg.Duration != "" {
				fmt.Fprintf(&b, " (%s)", formatDuration(seg.Duration))
			}
			b.WriteString("\n")
		}
		if opt.CabinClass != "" {
			fmt.Fprintf(&b, "   Cabin: %s\n", opt.CabinClass)
		}
	}
	b.WriteString("\nReply with the option number to select a flight.")
	return b.String()
}

// formatPriceVerification renders the pricing-confirmation summary fed back
// to the reasoning step: confirmed price, booking requirements, baggage, and
// per-traveler fare details.
func formatPriceVerification(priced *amadeus.PricedOffer) string {
	if priced == nil || len(priced.FlightOffers) == 0 {
		return "No valid pricing information available."
	}
	offer := priced.FlightOffers[0]

	var b strings.Builder
	b.WriteString("Price verification successful.\n")
	if len(offer.ValidatingAirlineCodes) > 0 {
		names := make([]string, 0, len(offer.ValidatingAirlineCodes))
		for _, code := range offer.ValidatingAirlineCodes {
			names = append(names, airlineName(code))
		}
		fmt.Fprintf(&b, "Airlines: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "Total: %s %s (base %s + taxes %s)\n",
		offer.Price.Total.StringFixed(2), offer.Price.Currency,
		offer.Price.Base.StringFixed(2), offer.Price.Taxes().StringFixed(2))
	if offer.LastTicketingDate != "" {
		fmt.Fprintf(&b, "Last ticketing date: %s\n", offer.LastTicketingDate)
	}

	var reqs []string
	if r := priced.BookingRequirements; r != nil {
		if r.EmailAddressRequired {
			reqs = append(reqs, "email address required")
		}
		if r.MobilePhoneNumberRequired {
			reqs = append(reqs, "phone number required")
		}
	}
	if offer.InstantTicketingRequired {
		reqs = append(reqs, "immediate payment required")
	}
	if offer.PaymentCardRequired {
		reqs = append(reqs, "credit card required")
	}
	if len(reqs) > 0 {
		fmt.Fprintf(&b, "Booking requirements: %s\n", strings.Join(reqs, ", "))
	} else {
		b.WriteString("Booking requirements: none\n")
	}

	for _, traveler := range offer.TravelerPricings {
		fmt.Fprintf(&b, "Traveler %s (%s): %s %s\n",
			traveler.TravelerID, traveler.TravelerType,
			traveler.Price.Total.StringFixed(2), traveler.Price.Currency)
		for _, seg := range traveler.FareDetailsBySegment {
			fare := seg.BrandedFare
			if fare == "" {
				fare = "Standard"
			}
			fmt.Fprintf(&b, "  Segment %s: %s fare (class %s, basis %s)", seg.SegmentID, fare, seg.Class, seg.FareBasis)
			if seg.IncludedCheckedBags != nil {
				fmt.Fprintf(&b, ", %d checked bags included", seg.IncludedCheckedBags.Quantity)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
