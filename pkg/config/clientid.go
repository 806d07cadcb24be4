package config

import (
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// ClientIDPrefix starts every generated client identity.
const ClientIDPrefix = "morseCode"

// IDGenerator produces a new client identity.
type IDGenerator func() string

var (
	idRand     = rand.New(rand.NewSource(time.Now().UnixNano()))
	idRandLock sync.Mutex
)

// NewClientID generates a client identity of the form morseCode<hex>.
func NewClientID() string {
	idRandLock.Lock()
	n := idRand.Intn(0xffff)
	idRandLock.Unlock()
	return ClientIDPrefix + strconv.FormatInt(int64(n), 16)
}
