package blkio

// NosysName is the mixin name recorded when no candidate was supported
const NosysName = "nosys"

func errNosys(op string) error {
	return NewError(op, ErrCodeNotSupported, "no supporting mixin bound")
}

// nosys fails every call of every sub-interface with NotSupported. One
// shared instance backs all unfilled slots.
type nosys struct{}

var nosysImpl = nosys{}

var (
	_ Mem   = nosys{}
	_ Sync  = nosys{}
	_ Async = nosys{}
	_ Admin = nosys{}
	_ Dev   = nosys{}
)

func (nosys) Alloc(*Device, int) ([]byte, error)           { return nil, errNosys("mem.alloc") }
func (nosys) Realloc(*Device, []byte, int) ([]byte, error) { return nil, errNosys("mem.realloc") }
func (nosys) Free(*Device, []byte) error                   { return errNosys("mem.free") }
func (nosys) VtoPhys(*Device, []byte) (uint64, error)      { return 0, errNosys("mem.vtophys") }

func (nosys) CmdIO(*Ctx, []byte, []byte) error             { return errNosys("cmd.io") }
func (nosys) CmdIOV(*Ctx, [][]byte, [][]byte) error        { return errNosys("cmd.iov") }
func (nosys) CmdAdmin(*Ctx, []byte, []byte) error          { return errNosys("cmd.admin") }
func (nosys) CmdPseudo(*Ctx, []byte, []byte) error         { return errNosys("cmd.pseudo") }
func (nosys) Init(*Queue, int) error                       { return errNosys("queue.init") }
func (nosys) Term(*Queue) error                            { return errNosys("queue.term") }
func (nosys) Poke(*Queue, uint32) (int, error)             { return 0, errNosys("queue.poke") }
func (nosys) Wait(*Queue) (int, error)                     { return 0, errNosys("queue.wait") }
func (nosys) Enumerate(string, *Opts, EnumerateFunc) error { return errNosys("dev.enumerate") }
func (nosys) Open(*Device) error                           { return errNosys("dev.open") }
func (nosys) Close(*Device)                                {}

func nosysMixin(kind MixinKind) Mixin {
	return Mixin{Kind: kind, Name: NosysName, Descr: "not supported", Impl: nosysImpl}
}
