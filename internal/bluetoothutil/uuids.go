package bluetoothutil

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// KISS service characteristics are named from the peer's point of view: the
// peer writes TX and receives RX notifications.
var (
	kissServiceUUID = mustParseUUID("00000001-ba2a-46c9-ae49-01b0961f68bb")
	kissTXUUID      = mustParseUUID("00000002-ba2a-46c9-ae49-01b0961f68bb")
	kissRXUUID      = mustParseUUID("00000003-ba2a-46c9-ae49-01b0961f68bb")

	updateServiceUUID  = mustParseUUID("1A68D2B0-C2E4-453F-A2BB-B659D66CF442")
	updateFlashUUID    = mustParseUUID("1A68D2B1-C2E4-453F-A2BB-B659D66CF442")
	updateIdentityUUID = mustParseUUID("1A68D2B2-C2E4-453F-A2BB-B659D66CF442")
)

func mustParseUUID(raw string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		panic(fmt.Sprintf("invalid bluetooth UUID %q: %v", raw, err))
	}

	return uuid
}

func KISSServiceUUID() bluetooth.UUID {
	return kissServiceUUID
}

func KISSTXUUID() bluetooth.UUID {
	return kissTXUUID
}

func KISSRXUUID() bluetooth.UUID {
	return kissRXUUID
}

func UpdateServiceUUID() bluetooth.UUID {
	return updateServiceUUID
}

func UpdateFlashUUID() bluetooth.UUID {
	return updateFlashUUID
}

func UpdateIdentityUUID() bluetooth.UUID {
	return updateIdentityUUID
}
