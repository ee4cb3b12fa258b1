package flightagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aerodesk/flightagent/amadeus"
	"github.com/aerodesk/flightagent/internal/ratelimit"
)

// Backend is the flight-data service the tools call. *amadeus.Client
// satisfies it; tests inject fakes.
type Backend interface {
	SearchOffers(ctx context.Context, req amadeus.SearchRequest) ([]amadeus.FlightOffer, error)
	PriceOffer(ctx context.Context, offer amadeus.FlightOffer) (*amadeus.PricedOffer, error)
	CreateOrder(ctx context.Context, req amadeus.OrderRequest) (*amadeus.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	SearchLocations(ctx context.Context, keyword string) ([]amadeus.Location, error)
}

// toolset binds the tool registry to one session and its collaborators.
// Every backend call goes through the shared limiter: search, pricing, and
// booking compete for the same external quota as the reasoning calls.
type toolset struct {
	backend   Backend
	limiter   *ratelimit.Limiter
	session   *Session
	logger    *slog.Logger
	maxOffers int
}

// searchSuccess is the typed result of a non-empty flight search. Dispatch
// feeds the count back as the tool result and renders the options as a
// digest message ahead of the next reasoning call.
type searchSuccess struct {
	Count   int            `json:"count"`
	Options []FlightOption `json:"-"`
}

func newToolset(backend Backend, limiter *ratelimit.Limiter, session *Session, logger *slog.Logger, maxOffers int) *toolset {
	return &toolset{
		backend:   backend,
		limiter:   limiter,
		session:   session,
		logger:    logger,
		maxOffers: maxOffers,
	}
}

// tools returns the registered tool set, keyed by name.
func (ts *toolset) tools() map[string]Tool {
	all := []Tool{
		ts.searchFlightsTool(),
		ts.selectFlightTool(),
		ts.verifyPriceTool(),
		ts.holdReservationTool(),
		ts.addPassengerInfoTool(),
		ts.processPaymentTool(),
		ts.confirmBookingTool(),
		ts.cancelHoldTool(),
	}

	registry := make(map[string]Tool, len(all))
	for _, t := range all {
		registry[t.Name()] = t
	}
	return registry
}

func (ts *toolset) searchFlightsTool() Tool {
	return NewTool("search_flights").
		WithDescription("Search real-time flight offers between two airports on a date.").
		WithParameter("origin", String().Required().WithDescription("Departure airport: IATA code or city/airport name")).
		WithParameter("destination", String().Required().WithDescription("Arrival airport: IATA code or city/airport name")).
		WithParameter("departure_date", String().Required().WithDescription("Departure date, YYYY-MM-DD")).
		WithParameter("passengers", Integer().WithDescription("Number of adult passengers, default 1")).
		WithParameter("return_date", String().WithDescription("Optional return date for round trips, YYYY-MM-DD")).
		WithParameter("cabin_class", String().WithEnum("ECONOMY", "PREMIUM_ECONOMY", "BUSINESS", "FIRST").WithDescription("Cabin class, default ECONOMY")).
		WithHandler(ts.searchFlights).
		Build()
}

func (ts *toolset) searchFlights(ctx context.Context, args map[string]any) (any, error) {
	origin := stringArg(args, "origin")
	destination := stringArg(args, "destination")
	departureDate := stringArg(args, "departure_date")
	if origin == "" || destination == "" || departureDate == "" {
		return errorPayload("origin, destination and departure_date are required"), nil
	}

	passengers := intArg(args, "passengers", 1)
	cabinClass := stringArg(args, "cabin_class")
	if cabinClass == "" {
		cabinClass = "ECONOMY"
	}

	originCode, err := ts.resolveAirportCode(ctx, origin)
	if err != nil {
		return nil, err
	}
	destCode, err := ts.resolveAirportCode(ctx, destination)
	if err != nil {
		return nil, err
	}
	if originCode == "" || destCode == "" {
		// No backend search without valid codes.
		return errorPayload("invalid airport codes"), nil
	}

	if err := ts.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	offers, err := ts.backend.SearchOffers(ctx, amadeus.SearchRequest{
		Origin:        originCode,
		Destination:   destCode,
		DepartureDate: departureDate,
		ReturnDate:    stringArg(args, "return_date"),
		Adults:        passengers,
		TravelClass:   cabinClass,
		MaxResults:    ts.maxOffers,
	})
	if err != nil {
		ts.logger.Error("flight search failed", "origin", originCode, "destination", destCode, "error", err)
		return errorPayload(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(offers) == 0 {
		return errorPayload("no flights found"), nil
	}

	if len(offers) > ts.maxOffers {
		offers = offers[:ts.maxOffers]
	}
	options := make([]FlightOption, 0, len(offers))
	for _, offer := range offers {
		options = append(options, optionFromOffer(offer, cabinClass))
	}

	ts.session.replaceFlightOptions(SearchParams{
		Origin:        originCode,
		Destination:   destCode,
		DepartureDate: departureDate,
		ReturnDate:    stringArg(args, "return_date"),
		Passengers:    passengers,
		CabinClass:    cabinClass,
	}, options)

	ts.logger.Info("flight search succeeded", "origin", originCode, "destination", destCode, "offers", len(options))
	return searchSuccess{Count: len(options), Options: options}, nil
}

// resolveAirportCode turns a free-text keyword into an IATA code, using the
// per-session cache to avoid repeat lookups. A bare three-letter code is
// taken as-is. Returns "" when nothing resolves; the error is reserved for
// cancellation.
func (ts *toolset) resolveAirportCode(ctx context.Context, keyword string) (string, error) {
	trimmed := strings.TrimSpace(keyword)
	if looksLikeIATACode(trimmed) {
		return strings.ToUpper(trimmed), nil
	}

	if code, ok := ts.session.cachedAirportCode(trimmed); ok {
		return code, nil
	}

	if err := ts.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	locations, err := ts.backend.SearchLocations(ctx, trimmed)
	if err != nil {
		ts.logger.Warn("airport lookup failed", "keyword", trimmed, "error", err)
		return "", nil
	}
	if len(locations) == 0 {
		return "", nil
	}

	code := locations[0].IATACode
	ts.session.cacheAirportCode(trimmed, code)
	return code, nil
}

func looksLikeIATACode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func (ts *toolset) selectFlightTool() Tool {
	return NewTool("select_flight").
		WithDescription("Select one of the listed flight options for booking, by its list number.").
		WithParameter("option_number", Integer().Required().WithDescription("1-based number of the flight option shown to the user")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			number := intArg(args, "option_number", 0)
			selected, ok := ts.session.selectOption(number)
			if !ok {
				return errorPayload(fmt.Sprintf("no flight option %d in the current results", number)), nil
			}
			return map[string]any{
				"selected_flight": selected.ID,
				"price":           selected.Price.String(),
				"currency":        selected.Currency,
			}, nil
		}).
		Build()
}

func (ts *toolset) verifyPriceTool() Tool {
	return NewTool("verify_price").
		WithDescription("Confirm the current price and booking requirements for a flight option before booking.").
		WithParameter("flight_id", String().Required().WithDescription("Offer id of a flight option from the current results")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			id := stringArg(args, "flight_id")
			option, ok := ts.session.optionByID(id)
			if !ok {
				return errorPayload("unknown flight id: run a search first"), nil
			}

			if err := ts.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
			priced, err := ts.backend.PriceOffer(ctx, option.Offer())
			if err != nil {
				ts.logger.Error("price verification failed", "flight_id", id, "error", err)
				return errorPayload(fmt.Sprintf("price verification failed: %v", err)), nil
			}
			return map[string]any{"verification": formatPriceVerification(priced)}, nil
		}).
		Build()
}

func (ts *toolset) holdReservationTool() Tool {
	return NewTool("hold_reservation").
		WithDescription("Place a temporary hold on a flight option. Requires passenger details.").
		WithParameter("flight_id", String().Required().WithDescription("Offer id of a flight option from the current results")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			id := stringArg(args, "flight_id")
			option, ok := ts.session.optionByID(id)
			if !ok {
				return errorPayload("unknown flight id: run a search first"), nil
			}

			_, passenger, _ := ts.session.bookingDetails()
			if passenger == nil {
				return errorPayload("passenger details are required before holding a reservation"), nil
			}

			if err := ts.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
			order, err := ts.backend.CreateOrder(ctx, amadeus.OrderRequest{
				Offer:     option.Offer(),
				Travelers: travelersFrom(passenger),
			})
			if err != nil {
				ts.logger.Error("hold failed", "flight_id", id, "error", err)
				return errorPayload(fmt.Sprintf("hold failed: %v", err)), nil
			}

			ts.session.recordHold(order.Reference())
			return map[string]any{"reservation_id": order.Reference()}, nil
		}).
		Build()
}

func (ts *toolset) addPassengerInfoTool() Tool {
	return NewTool("add_passenger_info").
		WithDescription("Store the passenger's personal details for booking. No backend call is made.").
		WithParameter("name", String().Required().WithDescription("Full name as on the travel document")).
		WithParameter("date_of_birth", String().Required().WithDescription("Date of birth, YYYY-MM-DD")).
		WithParameter("document", String().Required().WithDescription("Passport or identity document number")).
		WithParameter("email", String().WithDescription("Contact email address")).
		WithParameter("phone", String().WithDescription("Contact phone number")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			info := PassengerInfo{
				FullName:    stringArg(args, "name"),
				DateOfBirth: stringArg(args, "date_of_birth"),
				Document:    stringArg(args, "document"),
				Email:       stringArg(args, "email"),
				Phone:       stringArg(args, "phone"),
			}
			for field, value := range map[string]string{
				"name":          info.FullName,
				"date_of_birth": info.DateOfBirth,
				"document":      info.Document,
			} {
				if value == "" {
					return errorPayload("missing required field: " + field), nil
				}
			}

			ts.session.setPassenger(info)
			return map[string]any{"status": "passenger details saved"}, nil
		}).
		Build()
}

func (ts *toolset) processPaymentTool() Tool {
	return NewTool("process_payment").
		WithDescription("Record payment details. The card is charged as part of booking confirmation.").
		WithParameter("card_number", String().Required().WithDescription("Payment card number")).
		WithParameter("expiry_date", String().Required().WithDescription("Card expiry, YYYY-MM")).
		WithParameter("vendor_code", String().Required().WithEnum("VI", "MC", "AX").WithDescription("Card vendor code")).
		WithParameter("holder_name", String().WithDescription("Cardholder name")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			info := PaymentInfo{
				Method:     "creditCard",
				VendorCode: stringArg(args, "vendor_code"),
				CardNumber: stringArg(args, "card_number"),
				ExpiryDate: stringArg(args, "expiry_date"),
				HolderName: stringArg(args, "holder_name"),
			}
			for field, value := range map[string]string{
				"card_number": info.CardNumber,
				"expiry_date": info.ExpiryDate,
				"vendor_code": info.VendorCode,
			} {
				if value == "" {
					return errorPayload("missing required field: " + field), nil
				}
			}

			ts.session.setPayment(info)
			return map[string]any{"status": "payment ready"}, nil
		}).
		Build()
}

func (ts *toolset) confirmBookingTool() Tool {
	return NewTool("confirm_booking").
		WithDescription("Create the booking for the selected flight using the stored passenger and payment details.").
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			selected, passenger, payment := ts.session.bookingDetails()
			switch {
			case selected == nil:
				return errorPayload("no flight selected"), nil
			case passenger == nil:
				return errorPayload("passenger details missing"), nil
			case payment == nil:
				return errorPayload("payment details missing"), nil
			}

			if err := ts.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
			order, err := ts.backend.CreateOrder(ctx, amadeus.OrderRequest{
				Offer:     selected.Offer(),
				Travelers: travelersFrom(passenger),
				Payment: &amadeus.Payment{
					Method: payment.Method,
					Card: &amadeus.PaymentCard{
						VendorCode: payment.VendorCode,
						CardNumber: payment.CardNumber,
						ExpiryDate: payment.ExpiryDate,
						HolderName: payment.HolderName,
					},
				},
			})
			if err != nil {
				ts.logger.Error("booking failed", "flight_id", selected.ID, "error", err)
				return errorPayload(fmt.Sprintf("booking failed: %v", err)), nil
			}

			return map[string]any{"booking_reference": order.Reference()}, nil
		}).
		Build()
}

func (ts *toolset) cancelHoldTool() Tool {
	return NewTool("cancel_hold").
		WithDescription("Cancel a held reservation. Cancelling an unknown or already-cancelled hold succeeds.").
		WithParameter("flight_id", String().Required().WithDescription("Reservation id returned by hold_reservation")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			id := stringArg(args, "flight_id")
			if id == "" {
				return errorPayload("flight_id is required"), nil
			}

			if err := ts.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
			if err := ts.backend.DeleteOrder(ctx, id); err != nil {
				ts.logger.Error("cancel hold failed", "reservation_id", id, "error", err)
				return errorPayload(fmt.Sprintf("cancellation failed: %v", err)), nil
			}
			return map[string]any{"status": "hold cancelled"}, nil
		}).
		Build()
}

// optionFromOffer flattens a backend offer into the conversation-facing
// snapshot. The offer id and raw payload are kept verbatim.
func optionFromOffer(offer amadeus.FlightOffer, cabinClass string) FlightOption {
	option := FlightOption{
		ID:         offer.ID,
		Price:      offer.Price.Total,
		Currency:   offer.Price.Currency,
		CabinClass: cabinClass,
		offer:      offer,
	}
	if len(offer.TravelerPricings) > 0 && len(offer.TravelerPricings[0].FareDetailsBySegment) > 0 {
		if cabin := offer.TravelerPricings[0].FareDetailsBySegment[0].Cabin; cabin != "" {
			option.CabinClass = cabin
		}
	}
	for _, itinerary := range offer.Itineraries {
		for _, seg := range itinerary.Segments {
			option.Segments = append(option.Segments, FlightSegment{
				Airline:      seg.CarrierCode,
				FlightNumber: seg.Number,
				Origin:       seg.Departure.IATACode,
				Destination:  seg.Arrival.IATACode,
				Departure:    seg.Departure.At,
				Arrival:      seg.Arrival.At,
				Duration:     seg.Duration,
			})
		}
	}
	return option
}

func travelersFrom(p *PassengerInfo) []amadeus.Traveler {
	first, last := splitName(p.FullName)
	traveler := amadeus.Traveler{
		ID:          "1",
		DateOfBirth: p.DateOfBirth,
		Name:        amadeus.TravelerName{FirstName: first, LastName: last},
		Documents: []amadeus.Document{{
			DocumentType: "PASSPORT",
			Number:       p.Document,
			Holder:       true,
		}},
	}
	if p.Email != "" || p.Phone != "" {
		contact := &amadeus.Contact{EmailAddress: p.Email}
		if p.Phone != "" {
			contact.Phones = []amadeus.Phone{{DeviceType: "MOBILE", Number: p.Phone}}
		}
		traveler.Contact = contact
	}
	return []amadeus.Traveler{traveler}
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
