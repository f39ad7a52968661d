// credential-client is a demonstration of the region trigger and
// credential presentation engines wired together against an in-memory
// simulated reader.
//
// Usage:
//
//	credential-client [options]
//
// Options:
//
//	-device-id           32-char hex device identifier (default: example)
//	-device-key          32-char hex preshared key (default: example)
//	-credential          credential string to present (default: example)
//	-region-uuid         region identifier to watch (default: example)
//	-service-uuid        GATT service UUID to filter/discover (default: example)
//	-characteristic-uuid GATT characteristic UUID to subscribe/write (default: example)
//
// Example:
//
//	credential-client -credential "prod-pin_access_tool-7603489"
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/g3-bmx/ble-credential-client/pkg/gatt"
	"github.com/g3-bmx/ble-credential-client/pkg/presentation"
	"github.com/g3-bmx/ble-credential-client/pkg/region"
	"github.com/g3-bmx/ble-credential-client/pkg/wire"
	"github.com/pion/logging"
)

const (
	defaultDeviceID           = "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"
	defaultDeviceKey          = "13f75379273f324d31335278a66062af"
	defaultCredential         = "prod-pin_access_tool-7603489"
	defaultRegionUUID         = "e2c56db5-dffb-48d2-b060-d0f5a71096e0"
	defaultServiceUUID        = string(gatt.ReaderService)
	defaultCharacteristicUUID = string(gatt.CredentialCharacteristic)
)

func main() {
	deviceIDHex := flag.String("device-id", defaultDeviceID, "32-char hex device identifier")
	deviceKeyHex := flag.String("device-key", defaultDeviceKey, "32-char hex preshared key")
	credential := flag.String("credential", defaultCredential, "credential string to present")
	regionUUID := flag.String("region-uuid", defaultRegionUUID, "region identifier to watch")
	serviceUUID := flag.String("service-uuid", defaultServiceUUID, "GATT service UUID to filter/discover")
	characteristicUUID := flag.String("characteristic-uuid", defaultCharacteristicUUID, "GATT characteristic UUID to subscribe/write")
	flag.Parse()

	deviceID, err := hex.DecodeString(*deviceIDHex)
	if err != nil || len(deviceID) != 16 {
		log.Fatalf("invalid -device-id: must be 32 hex chars (16 bytes)")
	}
	deviceKey, err := hex.DecodeString(*deviceKeyHex)
	if err != nil || len(deviceKey) != 16 {
		log.Fatalf("invalid -device-key: must be 32 hex chars (16 bytes)")
	}

	logFactory := logging.NewDefaultLoggerFactory()

	sim := gatt.NewSim(gatt.SimConfig{
		ServiceUUID:        gatt.ServiceUUID(*serviceUUID),
		CharacteristicUUID: gatt.CharacteristicUUID(*characteristicUUID),
		LoggerFactory:      logFactory,
		Responder:          demoReader{deviceKey: deviceKey}.respond,
	})
	defer sim.Close()

	presEngine, err := presentation.NewEngine(presentation.Config{
		DeviceID:           deviceID,
		DeviceKey:          deviceKey,
		Credential:         *credential,
		Transport:          sim,
		ServiceUUID:        gatt.ServiceUUID(*serviceUUID),
		CharacteristicUUID: gatt.CharacteristicUUID(*characteristicUUID),
		LoggerFactory:      logFactory,
		OnStateChange: func(obs presentation.ObservableState) {
			log.Printf("presentation state: %s (attempt %d)", obs.State, obs.Attempt)
		},
		OnResult: func(r presentation.Result) {
			if r.Success {
				log.Printf("credential accepted: %s", r.Message)
			} else {
				log.Printf("credential presentation failed: %s (%v)", r.Message, r.Err)
			}
		},
	})
	if err != nil {
		log.Fatalf("create presentation engine: %v", err)
	}

	regionEngine, err := region.NewEngine(region.Config{
		RegionUUID:    *regionUUID,
		Presentation:  presEngine,
		LoggerFactory: logFactory,
	})
	if err != nil {
		log.Fatalf("create region engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		time.Sleep(500 * time.Millisecond)
		fmt.Println("simulating region entry")
		regionEngine.Entered(*regionUUID)
	}()

	<-ctx.Done()
	log.Println("shutting down")
}

// demoReader emulates a reader's half of the wire protocol so the demo
// runs end to end without real hardware.
type demoReader struct {
	deviceKey []byte
}

func (d demoReader) respond(written []byte) ([]byte, bool) {
	if len(written) == 0 {
		return nil, false
	}
	switch wire.MessageType(written[0]) {
	case wire.TypeAuthRequest:
		return d.buildAuthResponse(written)
	case wire.TypeCredential:
		return []byte{byte(wire.TypeCredentialResponse), byte(wire.StatusSuccess)}, true
	default:
		return nil, false
	}
}
