package publish

import (
	"encoding/hex"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kromeklabs/spectro-driver/pkg/wire"
)

func componentIDFromName(name string) (byte, bool) {
	switch name {
	case "gamma":
		return wire.ComponentGamma, true
	case "neutron":
		return wire.ComponentNeutron, true
	case "dose":
		return wire.ComponentDose, true
	default:
		return 0, false
	}
}

func keyForComponent(componentID byte) string {
	switch componentID {
	case wire.ComponentNeutron:
		return KeyNeutron
	case wire.ComponentDose:
		return KeyDose
	default:
		return KeyGamma
	}
}

// watchCommands listens for commands on KeyCommandList (via BRPOP) and
// drives the acquisition core's Start/Stop/GetConfigurationData/
// SetConfigurationData operations, the way WatchRedisCommands drives nRF52
// UART messages from the same style of command list.
func (b *Bridge) watchCommands() {
	log.Printf("publish: starting command watcher on list key: %s", KeyCommandList)
	for {
		select {
		case <-b.stopCh:
			log.Println("publish: stopping command watcher")
			return
		default:
			result, err := b.redis.BRPop(0*time.Second, KeyCommandList)
			if err != nil {
				if err != redis.Nil {
					log.Printf("publish: error receiving command from %s: %v", KeyCommandList, err)
					time.Sleep(1 * time.Second)
				}
				continue
			}
			if result == nil || len(result) != 2 {
				continue
			}
			b.handleCommand(result[1])
		}
	}
}

// handleCommand parses and executes a single command line. Recognized
// forms: "start <component>", "stop <component> [force]",
// "get-config <component> <configID>", "set-config <component> <configID>
// <hex-data>". configID is parsed with strconv's base-0 rules, so both
// "136" and "0x88" work.
func (b *Bridge) handleCommand(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "start":
		if len(fields) != 2 {
			log.Printf("publish: malformed start command: %q", line)
			return
		}
		componentID, ok := componentIDFromName(fields[1])
		if !ok {
			log.Printf("publish: unknown component in start command: %q", line)
			return
		}
		if !b.core.StartProcessing(componentID) {
			log.Printf("publish: StartProcessing(%s) failed", fields[1])
			return
		}
		b.writeState(keyForComponent(componentID), StateRunning)

	case "stop":
		if len(fields) < 2 {
			log.Printf("publish: malformed stop command: %q", line)
			return
		}
		componentID, ok := componentIDFromName(fields[1])
		if !ok {
			log.Printf("publish: unknown component in stop command: %q", line)
			return
		}
		force := len(fields) >= 3 && fields[2] == "force"
		if !b.core.StopProcessing(componentID, force) {
			log.Printf("publish: StopProcessing(%s, force=%v) failed", fields[1], force)
		}

	case "get-config":
		if len(fields) != 3 {
			log.Printf("publish: malformed get-config command: %q", line)
			return
		}
		componentID, ok := componentIDFromName(fields[1])
		if !ok {
			log.Printf("publish: unknown component in get-config command: %q", line)
			return
		}
		configID, err := strconv.ParseUint(fields[2], 0, 16)
		if err != nil {
			log.Printf("publish: bad configID in get-config command: %q", line)
			return
		}
		data, err := b.core.GetConfigurationData(componentID, uint16(configID))
		key := keyForComponent(componentID)
		if err != nil {
			log.Printf("publish: GetConfigurationData(%s, 0x%x) failed: %v", fields[1], configID, err)
			if werr := b.redis.WriteAndPublishString(key, FieldConfigResult, "error: "+err.Error()); werr != nil {
				log.Printf("publish: failed to write config-result error: %v", werr)
			}
			return
		}
		if werr := b.redis.WriteAndPublishString(key, FieldConfigResult, hex.EncodeToString(data)); werr != nil {
			log.Printf("publish: failed to write config-result: %v", werr)
		}

	case "set-config":
		if len(fields) != 4 {
			log.Printf("publish: malformed set-config command: %q", line)
			return
		}
		componentID, ok := componentIDFromName(fields[1])
		if !ok {
			log.Printf("publish: unknown component in set-config command: %q", line)
			return
		}
		configID, err := strconv.ParseUint(fields[2], 0, 16)
		if err != nil {
			log.Printf("publish: bad configID in set-config command: %q", line)
			return
		}
		data, err := hex.DecodeString(fields[3])
		if err != nil {
			log.Printf("publish: bad hex payload in set-config command: %q", line)
			return
		}
		if err := b.core.SetConfigurationData(componentID, uint16(configID), data); err != nil {
			log.Printf("publish: SetConfigurationData(%s, 0x%x) failed: %v", fields[1], configID, err)
		}

	default:
		log.Printf("publish: unknown command: %q", line)
	}
}
