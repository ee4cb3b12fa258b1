package amadeus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeAPI struct {
	tokenRequests  int
	lastAuthHeader string
	handler        func(w http.ResponseWriter, r *http.Request)
}

func newFakeAPI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*fakeAPI, *Client) {
	t.Helper()
	api := &fakeAPI{handler: handler}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/security/oauth2/token" {
			api.tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token": "test-token", "expires_in": 1799}`))
			return
		}
		api.lastAuthHeader = r.Header.Get("Authorization")
		api.handler(w, r)
	}))
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient("client-id", "client-secret", logger, WithBaseURL(server.URL))
	return api, client
}

func TestTokenFetchedOnceAndReused(t *testing.T) {
	api, client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.SearchLocations(ctx, "paris"); err != nil {
			t.Fatalf("SearchLocations: %v", err)
		}
	}

	if api.tokenRequests != 1 {
		t.Fatalf("token fetched %d times, want 1", api.tokenRequests)
	}
	if api.lastAuthHeader != "Bearer test-token" {
		t.Fatalf("Authorization = %q", api.lastAuthHeader)
	}
}

func TestSearchOffersDecodesAndKeepsRaw(t *testing.T) {
	_, client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/shopping/flight-offers" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("originLocationCode") != "ADD" || q.Get("destinationLocationCode") != "CDG" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("adults") != "1" {
			t.Errorf("adults = %q", q.Get("adults"))
		}
		_, _ = w.Write([]byte(`{"data": [{
			"id": "42",
			"price": {"total": "450.00", "base": "400.00", "currency": "EUR"},
			"itineraries": [{"duration": "PT8H15M", "segments": [{
				"id": "s1", "carrierCode": "ET", "number": "704",
				"departure": {"iataCode": "ADD", "at": "2025-06-20T08:30:00"},
				"arrival": {"iataCode": "CDG", "at": "2025-06-20T15:45:00"},
				"duration": "PT8H15M", "aircraft": {"code": "350"}, "numberOfStops": 0
			}]}],
			"unmodeledField": {"keep": "me"}
		}]}`))
	})

	offers, err := client.SearchOffers(context.Background(), SearchRequest{
		Origin:        "ADD",
		Destination:   "CDG",
		DepartureDate: "2025-06-20",
	})
	if err != nil {
		t.Fatalf("SearchOffers: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers", len(offers))
	}

	offer := offers[0]
	if offer.ID != "42" {
		t.Fatalf("id = %q", offer.ID)
	}
	if got := offer.Price.Total.StringFixed(2); got != "450.00" {
		t.Fatalf("total = %s", got)
	}
	if got := offer.Price.Taxes().StringFixed(2); got != "50.00" {
		t.Fatalf("taxes = %s", got)
	}

	// Fields the struct does not model survive a re-marshal.
	raw, err := json.Marshal(offer)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["unmodeledField"]; !ok {
		t.Fatal("raw payload lost unmodeled field")
	}
}

func TestPriceOfferForwardsOfferVerbatim(t *testing.T) {
	const offerJSON = `{"id": "42", "price": {"total": "450.00", "base": "400.00", "currency": "EUR"}, "extra": "field"}`

	var offer FlightOffer
	if err := json.Unmarshal([]byte(offerJSON), &offer); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	_, client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Data struct {
				FlightOffers []json.RawMessage `json:"flightOffers"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(payload.Data.FlightOffers) != 1 {
			t.Errorf("offers in request: %d", len(payload.Data.FlightOffers))
		} else {
			var got, want any
			_ = json.Unmarshal(payload.Data.FlightOffers[0], &got)
			_ = json.Unmarshal([]byte(offerJSON), &want)
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("offer rewritten:\ngot  %s\nwant %s", gotJSON, wantJSON)
			}
		}
		_, _ = w.Write([]byte(`{"data": {"flightOffers": [` + offerJSON + `], "bookingRequirements": {"emailAddressRequired": true}}}`))
	})

	priced, err := client.PriceOffer(context.Background(), offer)
	if err != nil {
		t.Fatalf("PriceOffer: %v", err)
	}
	if priced.BookingRequirements == nil || !priced.BookingRequirements.EmailAddressRequired {
		t.Fatal("booking requirements not decoded")
	}
}

func TestCreateOrderPayload(t *testing.T) {
	_, client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Data map[string]json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		for _, key := range []string{"flightOffers", "travelers", "ticketingAgreement", "formOfPayments"} {
			if _, ok := payload.Data[key]; !ok {
				t.Errorf("order payload missing %q", key)
			}
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data": {"id": "order-9", "associatedRecords": [{"reference": "ABC123"}]}}`))
	})

	order, err := client.CreateOrder(context.Background(), OrderRequest{
		Offer: FlightOffer{ID: "42"},
		Travelers: []Traveler{{
			ID:          "1",
			DateOfBirth: "1990-04-12",
			Name:        TravelerName{FirstName: "Alemu", LastName: "Bekele"},
		}},
		Payment: &Payment{
			Method: "creditCard",
			Card:   &PaymentCard{VendorCode: "VI", CardNumber: "4111111111111111", ExpiryDate: "2027-08"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Reference() != "ABC123" {
		t.Fatalf("reference = %q", order.Reference())
	}
}

func TestOrderReferenceFallsBackToID(t *testing.T) {
	order := Order{ID: "order-9"}
	if order.Reference() != "order-9" {
		t.Fatalf("reference = %q", order.Reference())
	}
}

func TestDeleteOrderNotFoundIsNoOp(t *testing.T) {
	status := http.StatusOK
	_, client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(status)
	})

	ctx := context.Background()
	if err := client.DeleteOrder(ctx, "order-9"); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}

	// Cancelling again after the hold is gone still succeeds.
	status = http.StatusNotFound
	if err := client.DeleteOrder(ctx, "order-9"); err != nil {
		t.Fatalf("DeleteOrder on missing order: %v", err)
	}

	status = http.StatusInternalServerError
	if err := client.DeleteOrder(ctx, "order-9"); err == nil {
		t.Fatal("expected error on server failure")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	_, client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors": [{"status": 400, "code": 477, "title": "INVALID FORMAT", "detail": "invalid query parameter"}]}`))
	})

	_, err := client.SearchOffers(context.Background(), SearchRequest{Origin: "XXX", Destination: "CDG", DepartureDate: "bad"})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || len(apiErr.Errors) != 1 {
		t.Fatalf("apiErr = %+v", apiErr)
	}
	if apiErr.Errors[0].Title != "INVALID FORMAT" {
		t.Fatalf("title = %q", apiErr.Errors[0].Title)
	}
}
