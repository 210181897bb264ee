package obis

// Codes observed on the bridge, with the vendor variants that carry the same reading.
var (
	ImportTotal     = MustParseHex("0100010800ff")
	ImportTariff1   = MustParseHex("0100010801ff")
	ImportTariff2   = MustParseHex("0100010802ff")
	ImportTariff3   = MustParseHex("0100010803ff")
	ImportTariff4   = MustParseHex("0100010804ff")
	ExportTotal     = MustParseHex("0100020800ff")
	PowerActual     = MustParseHex("0100100700ff")
	PowerL1         = MustParseHex("0100240700ff")
	PowerL2         = MustParseHex("0100380700ff")
	PowerL3         = MustParseHex("01004c0700ff")
	PotentialL1     = MustParseHex("0100200700ff")
	PotentialL2     = MustParseHex("0100340700ff")
	PotentialL3     = MustParseHex("0100480700ff")
	CurrentL1       = MustParseHex("01001f0700ff")
	CurrentL2       = MustParseHex("0100330700ff")
	CurrentL3       = MustParseHex("0100470700ff")
	NetFrequency    = MustParseHex("01000e0700ff")
	PhaseU1U2       = MustParseHex("0100510701ff")
	PhaseU1U3       = MustParseHex("0100510702ff")
	PhaseI1U1       = MustParseHex("0100510704ff")
	PhaseI2U2       = MustParseHex("010051070fff")
	PhaseI3U3       = MustParseHex("010051071aff")
	FirmwareVersion = MustParseHex("010000020000")
	Manufacturer    = MustParseHex("010060320101")
	DeviceID        = MustParseHex("0100600100ff")
	SerialNumber    = MustParseHex("0100605a0201")
)

// Alias lists: SUM, POS(0), POS(255), NEG, ABS.
var (
	PowerActualAliases = []Code{PowerActual, MustParseHex("0100010700ff"), MustParseHex("01000107ffff"), MustParseHex("0100020700ff"), MustParseHex("01000f0700ff")}
	PowerL1Aliases     = []Code{PowerL1, MustParseHex("0100150700ff"), MustParseHex("01001507ffff"), MustParseHex("0100160700ff"), MustParseHex("0100230700ff")}
	PowerL2Aliases     = []Code{PowerL2, MustParseHex("0100290700ff"), MustParseHex("01002907ffff"), MustParseHex("01002a0700ff"), MustParseHex("0100370700ff")}
	PowerL3Aliases     = []Code{PowerL3, MustParseHex("01003d0700ff"), MustParseHex("01003d07ffff"), MustParseHex("01003e0700ff"), MustParseHex("01004b0700ff")}
)
