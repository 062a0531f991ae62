package broadcast

import (
	"time"

	"nfcbridge/reader"
)

// Message types sent to subscribers.
const (
	TypeConnected   = "CONNECTED"
	TypeScan        = "SCAN"
	TypeError       = "ERROR"
	TypeReaderError = "READER_ERROR"
	TypePong        = "PONG"

	// TypePing is the only client message that is acted on.
	TypePing = "PING"
)

// Connected is sent once to every new subscriber before any other message.
type Connected struct {
	Type             string  `json:"type"`
	Status           string  `json:"status"`
	NFCAvailable     bool    `json:"nfc_available"`
	ReaderConnected  bool    `json:"reader_connected"`
	ReaderName       *string `json:"reader_name"`
	ConnectedClients int     `json:"connected_clients"`
	Timestamp        int64   `json:"timestamp"`
}

// Scan announces an accepted card tap.
type Scan struct {
	Type      string `json:"type"`
	UID       string `json:"uid"`
	Timestamp int64  `json:"timestamp"`
	Reader    string `json:"reader"`
}

// Error carries ERROR and READER_ERROR notifications.
type Error struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

// Pong answers a client PING.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// NewConnected builds the greeting for a subscriber from the reader state
// and the subscriber count including the new subscriber.
func NewConnected(st reader.State, clients int, at time.Time) Connected {
	c := Connected{
		Type:             TypeConnected,
		Status:           "connected",
		NFCAvailable:     st.Available,
		ReaderConnected:  st.Attached,
		ConnectedClients: clients,
		Timestamp:        at.UnixMilli(),
	}
	if st.Name != "" {
		name := st.Name
		c.ReaderName = &name
	}
	return c
}

// NewScan builds a SCAN message.
func NewScan(id, readerName string, at time.Time) Scan {
	return Scan{Type: TypeScan, UID: id, Timestamp: at.UnixMilli(), Reader: readerName}
}

// NewError builds an ERROR message for a failure while handling a scan.
func NewError(msg string, at time.Time) Error {
	return Error{Type: TypeError, Error: msg, Timestamp: at.UnixMilli()}
}

// NewReaderError builds a READER_ERROR message for a driver fault.
func NewReaderError(msg string, at time.Time) Error {
	return Error{Type: TypeReaderError, Error: msg, Timestamp: at.UnixMilli()}
}

// NewPong builds a PONG message.
func NewPong(at time.Time) Pong {
	return Pong{Type: TypePong, Timestamp: at.UnixMilli()}
}
