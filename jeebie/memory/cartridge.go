package memory

import (
	"fmt"

	"github.com/tkellan/dmgcore/jeebie/util"
)

const titleLength = 11

const (
	entryPointAddress       = 0x100
	logoAddress             = 0x104
	titleAddress            = 0x134
	manufacturerCodeAddress = 0x13F
	cgbFlagAddress          = 0x143
	newLicenseCodeAddress   = 0x144
	sgbFlagAddress          = 0x146
	cartridgeTypeAddress    = 0x147
	romSizeAddress          = 0x148
	ramSizeAddress          = 0x149
	destinationCodeAddress  = 0x14A
	oldLicenseCodeAddress   = 0x14B
	versionNumberAddress    = 0x14C
	headerChecksumAddress   = 0x14D
	globalChecksumAddress   = 0x14E
)

// MBCType identifies which memory bank controller a cartridge uses, decoded
// from the cartridge type byte at 0x147.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

func (t MBCType) String() string {
	switch t {
	case NoMBCType:
		return "NoMBC"
	case MBC1Type:
		return "MBC1"
	case MBC1MultiType:
		return "MBC1 (multicart)"
	case MBC2Type:
		return "MBC2"
	case MBC3Type:
		return "MBC3"
	case MBC5Type:
		return "MBC5"
	default:
		return "unknown"
	}
}

// mbcTypeFromCartType decodes the cartridge type byte (0x147) into an
// MBCType plus the battery/RTC/rumble extras the same byte also encodes.
func mbcTypeFromCartType(cartType uint8) (mbcType MBCType, hasBattery, hasRTC, hasRumble bool) {
	switch cartType {
	case 0x00:
		return NoMBCType, false, false, false
	case 0x01, 0x02:
		return MBC1Type, false, false, false
	case 0x03:
		return MBC1Type, true, false, false
	case 0x05:
		return MBC2Type, false, false, false
	case 0x06:
		return MBC2Type, true, false, false
	case 0x0F, 0x10:
		return MBC3Type, true, true, false
	case 0x11, 0x12:
		return MBC3Type, false, false, false
	case 0x13:
		return MBC3Type, true, false, false
	case 0x19, 0x1A:
		return MBC5Type, false, false, false
	case 0x1B:
		return MBC5Type, true, false, false
	case 0x1C, 0x1D:
		return MBC5Type, false, false, true
	case 0x1E:
		return MBC5Type, true, false, true
	default:
		return MBCUnknownType, false, false, false
	}
}

// romBankCountFromCode maps the ROM size code at 0x148 to the expected
// number of 16 KiB banks.
func romBankCountFromCode(code uint8) (banks int, ok bool) {
	if code > 8 {
		return 0, false
	}
	return 2 << code, true
}

// ramBankCountFromCode maps the RAM size code at 0x149 to the number of
// 8 KiB external RAM banks.
func ramBankCountFromCode(code uint8) (banks uint8, ok bool) {
	switch code {
	case 0x00:
		return 0, true
	case 0x02:
		return 1, true
	case 0x03:
		return 4, true
	case 0x04:
		return 16, true
	case 0x05:
		return 8, true
	default:
		return 0, false
	}
}

type Cartridge struct {
	data           []byte
	title          string
	headerChecksum uint16
	globalChecksum uint16
	version        uint8
	cartType       uint8
	romSize        uint8
	ramSize        uint8

	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	ramBankCount uint8
}

// NewCartridge creates an empty cartridge, useful only for debugging purposes.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, 0x10000),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData initializes a new Cartridge from a slice of bytes,
// decoding and validating the header per the cartridge type (0x147), ROM
// size (0x148) and RAM size (0x149) tables. Returns an error if the image
// length doesn't match the bank count the header advertises, or the header
// names an unsupported MBC type.
func NewCartridgeWithData(bytes []byte) (*Cartridge, error) {
	if len(bytes) < globalChecksumAddress+2 || len(bytes)%0x4000 != 0 {
		return nil, fmt.Errorf("invalid cartridge: length %d is not a multiple of a 16KiB bank", len(bytes))
	}

	titleBytes := bytes[titleAddress : titleAddress+titleLength]
	cartType := bytes[cartridgeTypeAddress]
	romSize := bytes[romSizeAddress]
	ramSize := bytes[ramSizeAddress]

	mbcType, hasBattery, hasRTC, hasRumble := mbcTypeFromCartType(cartType)
	if mbcType == MBCUnknownType {
		return nil, fmt.Errorf("invalid cartridge: unsupported cartridge type 0x%02X", cartType)
	}

	expectedBanks, ok := romBankCountFromCode(romSize)
	if !ok {
		return nil, fmt.Errorf("invalid cartridge: unknown ROM size code 0x%02X", romSize)
	}
	if actualBanks := len(bytes) / 0x4000; actualBanks != expectedBanks {
		return nil, fmt.Errorf("invalid cartridge: header declares %d ROM banks, data has %d", expectedBanks, actualBanks)
	}

	ramBankCount, ok := ramBankCountFromCode(ramSize)
	if !ok {
		return nil, fmt.Errorf("invalid cartridge: unknown RAM size code 0x%02X", ramSize)
	}

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          cleanGameboyTitle(titleBytes),
		headerChecksum: util.CombineBytes(bytes[headerChecksumAddress+1], bytes[headerChecksumAddress]),
		globalChecksum: util.CombineBytes(bytes[globalChecksumAddress+1], bytes[globalChecksumAddress]),
		version:        bytes[versionNumberAddress],
		cartType:       cartType,
		romSize:        romSize,
		ramSize:        ramSize,
		mbcType:        mbcType,
		hasBattery:     hasBattery,
		hasRTC:         hasRTC,
		hasRumble:      hasRumble,
		ramBankCount:   ramBankCount,
	}

	copy(cart.data, bytes)

	return cart, nil
}

// ReadByte reads a byte at the specified address. Does not check bounds, so the caller must make sure the
// address is valid for the cartridge.
func (c Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte attempts a write to the specified address. Writing to a cartridge has sense if the cartridge
// has extra RAM or for some special operations, like switching ROM banks.
func (c Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	return c.data[addr]
}
