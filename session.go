package flightagent

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aerodesk/flightagent/amadeus"
	"github.com/aerodesk/flightagent/providers"
)

// FlightSegment is one leg of a flight option, flattened for conversation
// use.
type FlightSegment struct {
	Airline      string `json:"airline"`
	FlightNumber string `json:"flight_number"`
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	Departure    string `json:"departure"`
	Arrival      string `json:"arrival"`
	Duration     string `json:"duration"`
}

// FlightOption is a snapshot of one bookable offer from the most recent
// search. The ID is the backend's opaque offer token and is round-tripped
// verbatim into hold, pricing, and booking calls.
type FlightOption struct {
	ID         string          `json:"id"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Segments   []FlightSegment `json:"segments"`
	CabinClass string          `json:"cabin_class"`

	offer amadeus.FlightOffer
}

// Offer returns the underlying backend offer payload.
func (f FlightOption) Offer() amadeus.FlightOffer {
	return f.offer
}

// SearchParams is the last-known structured search intent. Advisory memory
// only; overwritten wholesale by each new search.
type SearchParams struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	ReturnDate    string `json:"return_date,omitempty"`
	Passengers    int    `json:"passengers"`
	CabinClass    string `json:"cabin_class"`
}

// PassengerInfo is traveler data collected during the conversation.
type PassengerInfo struct {
	FullName    string
	DateOfBirth string
	Document    string
	Email       string
	Phone       string
}

// PaymentInfo is payment data collected during the conversation. The actual
// charge happens as part of booking confirmation.
type PaymentInfo struct {
	Method     string
	VendorCode string
	CardNumber string
	ExpiryDate string
	HolderName string
}

// Session holds the state of one conversation. It is created by
// Agent.StartSession, mutated in place turn by turn, and discarded on
// reset. One conversation turn is in flight at a time; the mutex guards
// against a future multi-session driver, not expected contention.
type Session struct {
	mu sync.Mutex

	id             string
	messages       []providers.Message
	searchParams   SearchParams
	flightOptions  []FlightOption
	selectedFlight *FlightOption
	passenger      *PassengerInfo
	payment        *PaymentInfo
	holds          map[string]bool
	finished       bool

	// airportCodes caches keyword -> IATA resolutions for the session so
	// repeat lookups skip the backend.
	airportCodes map[string]string
}

const welcomeMessage = "Welcome! Where would you like to fly?"

func newSession() *Session {
	return &Session{
		id: uuid.NewString(),
		messages: []providers.Message{
			{Role: providers.RoleAssistant, Content: welcomeMessage},
		},
		holds:        make(map[string]bool),
		airportCodes: make(map[string]string),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Finished reports whether the session has reached its terminal state.
// Once true, only a reset clears it.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]providers.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// FlightOptions returns a copy of the options from the most recent
// successful search.
func (s *Session) FlightOptions() []FlightOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FlightOption, len(s.flightOptions))
	copy(out, s.flightOptions)
	return out
}

// SelectedFlight returns the option chosen for booking, if any.
func (s *Session) SelectedFlight() *FlightOption {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedFlight == nil {
		return nil
	}
	selected := *s.selectedFlight
	return &selected
}

// SearchParams returns the last-known structured search intent.
func (s *Session) SearchParams() SearchParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchParams
}

func (s *Session) append(msgs ...providers.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}

func (s *Session) markFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

// replaceFlightOptions swaps in a new result set wholesale. Called only for
// non-empty search results; empty or failed searches leave prior options
// untouched.
func (s *Session) replaceFlightOptions(params SearchParams, options []FlightOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchParams = params
	s.flightOptions = options
	s.selectedFlight = nil
}

// optionByID looks up a flight option from the current result set. Offer
// ids are never fabricated; an id the backend did not return is a miss.
func (s *Session) optionByID(id string) (FlightOption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, opt := range s.flightOptions {
		if opt.ID == id {
			return opt, true
		}
	}
	return FlightOption{}, false
}

func (s *Session) selectOption(index int) (FlightOption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 1 || index > len(s.flightOptions) {
		return FlightOption{}, false
	}
	selected := s.flightOptions[index-1]
	s.selectedFlight = &selected
	return selected, true
}

func (s *Session) setPassenger(p PassengerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passenger = &p
}

func (s *Session) setPayment(p PaymentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payment = &p
}

func (s *Session) bookingDetails() (*FlightOption, *PassengerInfo, *PaymentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedFlight, s.passenger, s.payment
}

func (s *Session) recordHold(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[reference] = true
}

func (s *Session) cachedAirportCode(keyword string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.airportCodes[normalizeKeyword(keyword)]
	return code, ok
}

func (s *Session) cacheAirportCode(keyword, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airportCodes[normalizeKeyword(keyword)] = code
}

func normalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// lastAssistantMessage returns the content of the most recent assistant
// message with non-empty content.
func (s *Session) lastAssistantMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		msg := s.messages[i]
		if msg.Role == providers.RoleAssistant && strings.TrimSpace(msg.Content) != "" {
			return msg.Content
		}
	}
	return ""
}
