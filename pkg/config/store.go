package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
)

// Store exclusively owns the Record and is the only writer to Storage.
// It is not safe for concurrent use; it lives in the loop goroutine.
type Store struct {
	// NewClientID generates client identities, NewClientID by default.
	NewClientID IDGenerator

	storage Storage
	rec     Record
	usable  bool
}

// NewStore creates a Store over storage holding the default record.
func NewStore(storage Storage) *Store {
	return &Store{
		NewClientID: NewClientID,
		storage:     storage,
		rec:         DefaultRecord(),
	}
}

// Record returns a copy of the current record.
func (s *Store) Record() Record {
	return s.rec
}

// Usable reports whether the record passed the completeness check at its
// last save. Nothing touches the network, the bus or the tone output
// while it is false.
func (s *Store) Usable() bool {
	return s.usable
}

// LoadOrDefault reads the persisted record. A record saved incomplete is
// kept as is and stays unusable until a later save completes it. A blob
// that does not decode, carries a foreign marker or an out of range port
// is replaced by defaults with a fresh client identity and saved
// immediately. Any other storage failure leaves the storage untouched.
// It returns Usable.
func (s *Store) LoadOrDefault() bool {
	rec, err := s.read()
	switch {
	case err != nil && !errors.Is(err, ErrLayout):
		glog.Errorf("config: stored record unreadable: %v", err)
		s.usable = false
		return false
	case err != nil:
		glog.Warningf("config: stored record unreadable, initializing: %v", err)
	case rec.Marker != 0 && !rec.Valid():
		glog.Warningf("config: stored record has unknown marker %#x, initializing", rec.Marker)
	case rec.BrokerPort < 0 || rec.BrokerPort > 65535:
		glog.Warningf("config: stored record failed sanity check (port %d), initializing", rec.BrokerPort)
	default:
		s.rec, s.usable = rec, rec.Valid()
		if !s.usable {
			glog.Info("config: device not configured")
		} else if rec.Debug {
			glog.Info("config: loaded configuration values from storage")
		}
		return s.usable
	}
	if err := s.ResetToDefaults(); err != nil {
		glog.Errorf("config: %v", err)
	}
	return s.usable
}

func (s *Store) read() (Record, error) {
	buf := make([]byte, BlobSize)
	n, err := s.storage.ReadAt(buf, 0)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = fmt.Errorf("%w: %d bytes stored", ErrLayout, n)
		}
		return Record{}, err
	}
	return Decode(buf)
}

// Save recomputes completeness, sets or clears the valid marker, makes
// sure a client identity exists and writes the full record. Invalid
// field values never make it fail; only a storage failure does.
func (s *Store) Save() error {
	if s.rec.Complete() {
		s.rec.Marker, s.usable = ValidMarker, true
		glog.V(1).Info("config: settings deemed complete")
	} else {
		s.rec.Marker, s.usable = 0, false
		glog.V(1).Info("config: settings still incomplete")
	}
	if s.rec.ClientID == "" {
		s.rec.ClientID = s.generateClientID()
	}
	if _, err := s.storage.WriteAt(Encode(s.rec), 0); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := s.storage.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// ResetToDefaults overwrites every field with its default, generates a
// fresh client identity and saves.
func (s *Store) ResetToDefaults() error {
	s.rec = DefaultRecord()
	s.rec.ClientID = s.generateClientID()
	return s.Save()
}

func (s *Store) generateClientID() string {
	id := clamp(s.NewClientID(), ClientIDSize)
	glog.V(1).Infof("config: new client id is %s", id)
	return id
}

// Setters below only change memory; callers Save afterwards.

// SetNetworkID sets the network id.
func (s *Store) SetNetworkID(v string) { s.rec.NetworkID = clamp(v, NetworkIDSize) }

// SetNetworkSecret sets the network secret.
func (s *Store) SetNetworkSecret(v string) { s.rec.NetworkSecret = clamp(v, SecretSize) }

// SetBrokerAddress sets the broker address.
func (s *Store) SetBrokerAddress(v string) { s.rec.BrokerAddress = clamp(v, BrokerAddressSize) }

// SetBrokerPort sets the broker port.
func (s *Store) SetBrokerPort(v int) { s.rec.BrokerPort = v }

// SetBrokerUsername sets the broker username.
func (s *Store) SetBrokerUsername(v string) { s.rec.BrokerUsername = clamp(v, UsernameSize) }

// SetBrokerUserSecret sets the broker user secret.
func (s *Store) SetBrokerUserSecret(v string) { s.rec.BrokerUserSecret = clamp(v, SecretSize) }

// SetDataTopic sets the topic carrying text to transcode.
func (s *Store) SetDataTopic(v string) { s.rec.DataTopic = clamp(v, TopicSize) }

// SetCommandTopic sets the topic carrying commands.
func (s *Store) SetCommandTopic(v string) { s.rec.CommandTopic = clamp(v, TopicSize) }

// SetLastWillMessage sets the last will payload.
func (s *Store) SetLastWillMessage(v string) {
	s.rec.LastWillMessage = clamp(v, LastWillMessageSize)
}

// SetDebug sets the debug flag.
func (s *Store) SetDebug(v bool) { s.rec.Debug = v }

// SetTonePitch sets the tone frequency in Hz.
func (s *Store) SetTonePitch(v int) { s.rec.TonePitchHz = v }

// SetDotDuration sets the dot duration in milliseconds.
func (s *Store) SetDotDuration(v int) { s.rec.DotDurationMs = v }

// RegenerateClientID replaces the client identity.
func (s *Store) RegenerateClientID() { s.rec.ClientID = s.generateClientID() }
