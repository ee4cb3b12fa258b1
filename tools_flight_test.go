package flightagent

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aerodesk/flightagent/amadeus"
	"github.com/aerodesk/flightagent/internal/ratelimit"
	"github.com/aerodesk/flightagent/internal/testutil"
)

func newTestToolset(t *testing.T, backend Backend) (*toolset, *Session) {
	t.Helper()
	session := newSession()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newToolset(backend, ratelimit.New(ratelimit.Config{}), session, logger, 3), session
}

func searchArgs() map[string]any {
	return map[string]any{
		"origin":         "ADD",
		"destination":    "CDG",
		"departure_date": "2025-06-20",
	}
}

func errorReason(t *testing.T, result any) string {
	t.Helper()
	payload, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result %T is not an error payload", result)
	}
	reason, ok := payload["error"].(string)
	if !ok {
		t.Fatalf("payload %v has no error reason", payload)
	}
	return reason
}

func TestSearchFlightsSuccess(t *testing.T) {
	backend := &fakeBackend{offers: []amadeus.FlightOffer{
		offerFromJSON(t, offerADDCDG),
		offerFromJSON(t, offerADDCDG2),
	}}
	ts, session := newTestToolset(t, backend)

	result, err := ts.searchFlights(context.Background(), searchArgs())
	testutil.AssertNoError(t, err)

	success, ok := result.(searchSuccess)
	if !ok {
		t.Fatalf("result %T, want searchSuccess", result)
	}
	testutil.AssertEqual(t, success.Count, 2)
	testutil.AssertEqual(t, len(session.FlightOptions()), 2)

	params := session.SearchParams()
	testutil.AssertEqual(t, params.Origin, "ADD")
	testutil.AssertEqual(t, params.Destination, "CDG")
	testutil.AssertEqual(t, params.Passengers, 1)
	testutil.AssertEqual(t, params.CabinClass, "ECONOMY")
}

func TestSearchFlightsTruncatesToMaxOffers(t *testing.T) {
	var offers []amadeus.FlightOffer
	for i := 0; i < 5; i++ {
		offers = append(offers, offerFromJSON(t, offerADDCDG))
	}
	backend := &fakeBackend{offers: offers}
	ts, session := newTestToolset(t, backend)

	result, err := ts.searchFlights(context.Background(), searchArgs())
	testutil.AssertNoError(t, err)

	success := result.(searchSuccess)
	testutil.AssertEqual(t, success.Count, 3)
	testutil.AssertEqual(t, len(session.FlightOptions()), 3)
}

func TestSearchFlightsEmptyLeavesPriorOptions(t *testing.T) {
	backend := &fakeBackend{offers: []amadeus.FlightOffer{offerFromJSON(t, offerADDCDG)}}
	ts, session := newTestToolset(t, backend)

	_, err := ts.searchFlights(context.Background(), searchArgs())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(session.FlightOptions()), 1)

	backend.offers = nil
	result, err := ts.searchFlights(context.Background(), searchArgs())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, errorReason(t, result), "no flights found")

	// Prior options untouched; wholesale replace only on non-empty success.
	testutil.AssertEqual(t, len(session.FlightOptions()), 1)
}

func TestSearchFlightsInvalidCodesSkipsBackend(t *testing.T) {
	backend := &fakeBackend{locations: map[string][]amadeus.Location{}}
	ts, _ := newTestToolset(t, backend)

	args := searchArgs()
	args["origin"] = "nowhereville"
	result, err := ts.searchFlights(context.Background(), args)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, errorReason(t, result), "invalid airport codes")
	testutil.AssertEqual(t, len(backend.searchRequests), 0)
}

func TestSearchFlightsBackendErrorIsAbsorbed(t *testing.T) {
	backend := &fakeBackend{searchErr: &amadeus.APIError{StatusCode: 500}}
	ts, session := newTestToolset(t, backend)

	result, err := ts.searchFlights(context.Background(), searchArgs())
	testutil.AssertNoError(t, err)
	testutil.AssertContains(t, errorReason(t, result), "search failed")
	testutil.AssertEqual(t, len(session.FlightOptions()), 0)
}

func TestResolveAirportCodeCachesLookups(t *testing.T) {
	backend := &fakeBackend{locations: map[string][]amadeus.Location{
		"addis ababa": {{Name: "BOLE INTL", IATACode: "ADD", SubType: "AIRPORT"}},
	}}
	ts, _ := newTestToolset(t, backend)

	ctx := context.Background()
	code, err := ts.resolveAirportCode(ctx, "Addis Ababa")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, code, "ADD")

	// Case-insensitive cache hit: no second backend lookup.
	code, err = ts.resolveAirportCode(ctx, "addis ababa")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, code, "ADD")
	testutil.AssertEqual(t, len(backend.lookups), 1)
}

func TestResolveAirportCodeBareIATA(t *testing.T) {
	backend := &fakeBackend{}
	ts, _ := newTestToolset(t, backend)

	code, err := ts.resolveAirportCode(context.Background(), "cdg")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, code, "CDG")
	testutil.AssertEqual(t, len(backend.lookups), 0)
}

func TestSelectFlightBounds(t *testing.T) {
	backend := &fakeBackend{offers: []amadeus.FlightOffer{offerFromJSON(t, offerADDCDG)}}
	ts, session := newTestToolset(t, backend)
	_, err := ts.searchFlights(context.Background(), searchArgs())
	testutil.AssertNoError(t, err)

	tool := ts.selectFlightTool()

	result, err := tool.Execute(context.Background(), map[string]any{"option_number": float64(2)})
	testutil.AssertNoError(t, err)
	testutil.AssertContains(t, errorReason(t, result), "no flight option 2")

	result, err = tool.Execute(context.Background(), map[string]any{"option_number": float64(1)})
	testutil.AssertNoError(t, err)
	selected := result.(map[string]any)
	testutil.AssertEqual(t, selected["selected_flight"], "1")
	testutil.AssertEqual(t, session.SelectedFlight().ID, "1")
}

func TestVerifyPriceUnknownID(t *testing.T) {
	ts, _ := newTestToolset(t, &fakeBackend{})
	tool := ts.verifyPriceTool()

	result, err := tool.Execute(context.Background(), map[string]any{"flight_id": "99"})
	testutil.AssertNoError(t, err)
	testutil.AssertContains(t, errorReason(t, result), "unknown flight id")
}

func TestHoldRequiresPassengerDetails(t *testing.T) {
	backend := &fakeBackend{offers: []amadeus.FlightOffer{offerFromJSON(t, offerADDCDG)}}
	ts, session := newTestToolset(t, backend)
	_, err := ts.searchFlights(context.Background(), searchArgs())
	testutil.AssertNoError(t, err)

	tool := ts.holdReservationTool()
	result, err := tool.Execute(context.Background(), map[string]any{"flight_id": "1"})
	testutil.AssertNoError(t, err)
	testutil.AssertContains(t, errorReason(t, result), "passenger details")

	session.setPassenger(PassengerInfo{FullName: "Alemu Bekele", DateOfBirth: "1990-04-12", Document: "EP1234567"})
	result, err = tool.Execute(context.Background(), map[string]any{"flight_id": "1"})
	testutil.AssertNoError(t, err)
	payload := result.(map[string]any)
	testutil.AssertEqual(t, payload["reservation_id"], "order-1")

	// Hold orders carry no payment.
	testutil.AssertEqual(t, len(backend.orderRequests), 1)
	if backend.orderRequests[0].Payment != nil {
		t.Fatal("hold order should not include payment")
	}
}

func TestAddPassengerInfoValidation(t *testing.T) {
	ts, session := newTestToolset(t, &fakeBackend{})
	tool := ts.addPassengerInfoTool()

	result, err := tool.Execute(context.Background(), map[string]any{
		"name":          "Alemu Bekele",
		"date_of_birth": "1990-04-12",
	})
	testutil.AssertNoError(t, err)
	testutil.AssertContains(t, errorReason(t, result), "document")

	_, err = tool.Execute(context.Background(), map[string]any{
		"name":          "Alemu Bekele",
		"date_of_birth": "1990-04-12",
		"document":      "EP1234567",
	})
	testutil.AssertNoError(t, err)
	_, passenger, _ := session.bookingDetails()
	if passenger == nil {
		t.Fatal("passenger not stored")
	}
	testutil.AssertEqual(t, passenger.FullName, "Alemu Bekele")
}

func TestProcessPaymentValidation(t *testing.T) {
	ts, session := newTestToolset(t, &fakeBackend{})
	tool := ts.processPaymentTool()

	result, err := tool.Execute(context.Background(), map[string]any{
		"card_number": "4111111111111111",
		"expiry_date": "2027-08",
	})
	testutil.AssertNoError(t, err)
	testutil.AssertContains(t, errorReason(t, result), "vendor_code")

	_, err = tool.Execute(context.Background(), map[string]any{
		"card_number": "4111111111111111",
		"expiry_date": "2027-08",
		"vendor_code": "VI",
	})
	testutil.AssertNoError(t, err)
	_, _, payment := session.bookingDetails()
	if payment == nil {
		t.Fatal("payment not stored")
	}
	testutil.AssertEqual(t, payment.Method, "creditCard")
}

func TestConfirmBookingPreconditions(t *testing.T) {
	backend := &fakeBackend{offers: []amadeus.FlightOffer{offerFromJSON(t, offerADDCDG)}}
	ts, session := newTestToolset(t, backend)
	tool := ts.confirmBookingTool()
	ctx := context.Background()

	result, err := tool.Execute(ctx, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, errorReason(t, result), "no flight selected")

	_, err = ts.searchFlights(ctx, searchArgs())
	testutil.AssertNoError(t, err)
	session.selectOption(1)

	result, err = tool.Execute(ctx, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, errorReason(t, result), "passenger details missing")

	session.setPassenger(PassengerInfo{FullName: "Alemu Bekele", DateOfBirth: "1990-04-12", Document: "EP1234567"})
	result, err = tool.Execute(ctx, nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, errorReason(t, result), "payment details missing")

	session.setPayment(PaymentInfo{Method: "creditCard", VendorCode: "VI", CardNumber: "4111111111111111", ExpiryDate: "2027-08"})
	result, err = tool.Execute(ctx, nil)
	testutil.AssertNoError(t, err)
	payload := result.(map[string]any)
	testutil.AssertEqual(t, payload["booking_reference"], "order-1")

	order := backend.orderRequests[len(backend.orderRequests)-1]
	if order.Payment == nil || order.Payment.Card == nil {
		t.Fatal("booking order missing payment")
	}
	testutil.AssertEqual(t, order.Payment.Card.VendorCode, "VI")
	testutil.AssertEqual(t, len(order.Travelers), 1)
}

func TestCancelHoldIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	ts, _ := newTestToolset(t, backend)
	tool := ts.cancelHoldTool()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := tool.Execute(ctx, map[string]any{"flight_id": "order-1"})
		testutil.AssertNoError(t, err)
		payload := result.(map[string]any)
		testutil.AssertEqual(t, payload["status"], "hold cancelled")
	}
	testutil.AssertEqual(t, len(backend.deleted), 2)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		full  string
		first string
		last  string
	}{
		{"Alemu Bekele", "Alemu", "Bekele"},
		{"Maria de la Cruz", "Maria de la", "Cruz"},
		{"Cher", "Cher", "Cher"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := splitName(tt.full)
		if first != tt.first || last != tt.last {
			t.Errorf("splitName(%q) = %q, %q; want %q, %q", tt.full, first, last, tt.first, tt.last)
		}
	}
}
