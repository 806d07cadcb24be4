// Package env provides facts about the host the device runs on.
package env

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// UnknownMachineID is reported when the host has no machine id.
const UnknownMachineID = "unknown"

// AppMachineID is the machine ID hashed with appID, safe to print or
// publish.
func AppMachineID(appID string) string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("env: machine id: %v", err)
		return UnknownMachineID
	}
	return id
}
