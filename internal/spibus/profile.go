package spibus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"firestige.xyz/twinport/internal/core"
)

// Profile is the chip-specific register map. The transport and forwarding
// logic stay chip-agnostic: everything they need to know about the device
// is injected through this structure. The default profile matches the
// reference dual-port switch; an alternate chip revision can be described
// in a YAML file instead of a code change.
type Profile struct {
	ChipID     uint16 `yaml:"chip_id"`
	ChipIDVal  uint32 `yaml:"chip_id_val"`
	Reset      uint16 `yaml:"reset"`
	Status     uint16 `yaml:"status"`
	IntStatus  uint16 `yaml:"int_status"`
	IntMask    uint16 `yaml:"int_mask"`
	SwitchCfg  uint16 `yaml:"switch_cfg"`
	TxFIFO     uint16 `yaml:"tx_fifo"`
	RxFIFO     uint16 `yaml:"rx_fifo"`
	RxSize     uint16 `yaml:"rx_size"`
	PortStatus [core.NumPhysPorts]uint16 `yaml:"port_status"`
	PortRxPkts [core.NumPhysPorts]uint16 `yaml:"port_rx_pkts"`
	PortTxPkts [core.NumPhysPorts]uint16 `yaml:"port_tx_pkts"`
	PortRxErrs [core.NumPhysPorts]uint16 `yaml:"port_rx_errs"`
	PortTxErrs [core.NumPhysPorts]uint16 `yaml:"port_tx_errs"`
}

// Register bit assignments shared across supported revisions.
const (
	ResetSoft uint32 = 0x00000001

	StatusReady uint32 = 0x00000001

	PortStatusLinkUp  uint32 = 0x00000001
	PortStatusEnabled uint32 = 0x00000002

	SwitchCfgEnable     uint32 = 0x00000001
	SwitchCfgCutThrough uint32 = 0x00000002
)

// DefaultProfile returns the register map of the reference chip.
func DefaultProfile() Profile {
	return Profile{
		ChipID:     0x0000,
		ChipIDVal:  0x2111,
		Reset:      0x0002,
		Status:     0x0003,
		IntStatus:  0x0004,
		IntMask:    0x0005,
		SwitchCfg:  0x0040,
		TxFIFO:     0x0200,
		RxFIFO:     0x0300,
		RxSize:     0x0301,
		PortStatus: [core.NumPhysPorts]uint16{0x0081, 0x00A1},
		PortRxPkts: [core.NumPhysPorts]uint16{0x0083, 0x00A3},
		PortTxPkts: [core.NumPhysPorts]uint16{0x0084, 0x00A4},
		PortRxErrs: [core.NumPhysPorts]uint16{0x0087, 0x00A7},
		PortTxErrs: [core.NumPhysPorts]uint16{0x0088, 0x00A8},
	}
}

// LoadProfile reads a register map from a YAML file. Zero-valued fields
// fall back to the default profile so a partial file only overrides what
// it names.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read chip profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse chip profile %s: %w", path, err)
	}
	if p.TxFIFO == p.RxFIFO {
		return p, fmt.Errorf("%w: chip profile tx_fifo and rx_fifo collide at 0x%04x",
			core.ErrConfigInvalid, p.TxFIFO)
	}
	return p, nil
}
