// Command blkio lists, describes and exercises devices through the
// go-blkio backends.
//
//	blkio enum [flags] [sysuri]
//	blkio info [flags] <uri>
//	blkio io   [flags] <uri>
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ehrlich-b/go-blkio"
	"github.com/ehrlich-b/go-blkio/backend"
	"github.com/ehrlich-b/go-blkio/internal/logging"
)

const usage = `usage: blkio <command> [flags] [uri]

commands:
  enum   list devices the enabled backends can find
  info   open a device and print identity, geometry and bound mixins
  io     write, read back and verify blocks through an async queue
  list   print the registered backends and their mixins
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "blkio: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags shared by every command
type options struct {
	be, mem, sync, async, admin string
	logLevel, config            string
	qdepth                      uint
	count                       uint
	direct                      bool
}

func (o *options) bind(fs *flag.FlagSet) {
	fs.StringVar(&o.be, "be", blkio.AutoBackend, "backend name")
	fs.StringVar(&o.mem, "mem", "", "memory mixin")
	fs.StringVar(&o.sync, "sync", "", "synchronous I/O mixin")
	fs.StringVar(&o.async, "async", "", "asynchronous I/O mixin")
	fs.StringVar(&o.admin, "admin", "", "admin mixin")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&o.config, "config", "", "YAML configuration file")
	fs.UintVar(&o.qdepth, "qdepth", blkio.DefaultQueueDepth, "queue depth (io)")
	fs.UintVar(&o.count, "count", 1024, "blocks to write and verify (io)")
	fs.BoolVar(&o.direct, "direct", false, "bypass the page cache")
}

func (o *options) opts() *blkio.Opts {
	return &blkio.Opts{
		Backend: o.be,
		Mem:     o.mem,
		Sync:    o.sync,
		Async:   o.async,
		Admin:   o.admin,
		Direct:  o.direct,
	}
}

func (o *options) registry() (*blkio.Registry, error) {
	var cfg *blkio.Config
	if o.config != "" {
		c, err := blkio.LoadConfig(o.config)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	reg, err := backend.NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		lc := logging.DefaultConfig()
		lc.Level = logging.ParseLevel(o.logLevel)
		log := logging.NewLogger(lc)
		logging.SetDefault(log)
		reg.SetLogger(log)
	}
	return reg, nil
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, args := args[0], args[1:]

	var o options
	fs := flag.NewFlagSet("blkio "+cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o.bind(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd {
	case "enum":
		return enum(&o, fs.Arg(0), out)
	case "info":
		if fs.NArg() != 1 {
			return errors.New("info needs a device uri")
		}
		return info(&o, fs.Arg(0), out)
	case "io":
		if fs.NArg() != 1 {
			return errors.New("io needs a device uri")
		}
		return ioRun(&o, fs.Arg(0), out)
	case "list":
		return list(&o, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func enum(o *options, sysURI string, out io.Writer) error {
	reg, err := o.registry()
	if err != nil {
		return err
	}
	found := 0
	err = reg.Enumerate(sysURI, o.opts(), func(id blkio.Ident) error {
		found++
		return id.Fprint(out)
	})
	if err != nil {
		return err
	}
	if found == 0 {
		fmt.Fprintln(out, "# no devices found")
	}
	return nil
}

func info(o *options, uri string, out io.Writer) error {
	reg, err := o.registry()
	if err != nil {
		return err
	}
	dev, err := reg.Open(uri, o.opts())
	if err != nil {
		return err
	}
	defer dev.Close()
	return dev.Fprint(out)
}

func list(o *options, out io.Writer) error {
	reg, err := o.registry()
	if err != nil {
		return err
	}
	for _, attr := range reg.Backends() {
		def, _ := reg.Lookup(attr.Name)
		if err := blkio.FprintDef(out, def); err != nil {
			return err
		}
	}
	return nil
}

func ioRun(o *options, uri string, out io.Writer) error {
	reg, err := o.registry()
	if err != nil {
		return err
	}
	dev, err := reg.Open(uri, o.opts())
	if err != nil {
		return err
	}
	defer dev.Close()

	stats, err := verify(dev, uint32(o.qdepth), uint64(o.count))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "# %d blocks of %d bytes, qdepth %d: write %s, read %s\n",
		stats.blocks, dev.Geo().NBytes, o.qdepth, stats.write, stats.read)
	return dev.Fprint(out)
}

type ioStats struct {
	blocks      uint64
	write, read time.Duration
}

// verify writes count distinct blocks from lba 0 through one queue, reads
// them back through the same queue and compares
func verify(dev *blkio.Device, qdepth uint32, count uint64) (ioStats, error) {
	geo := dev.Geo()
	count = min(count, geo.NSect)
	if count == 0 {
		return ioStats{}, errors.New("device has no blocks")
	}
	bs := int(geo.NBytes)

	wbuf, err := dev.BufAlloc(int(count) * bs)
	if err != nil {
		return ioStats{}, err
	}
	defer dev.BufFree(wbuf)
	rbuf, err := dev.BufAlloc(int(count) * bs)
	if err != nil {
		return ioStats{}, err
	}
	defer dev.BufFree(rbuf)

	for i := range wbuf {
		wbuf[i] = byte(i/bs) ^ byte(i)
	}
	clear(rbuf)

	q, err := blkio.NewQueue(dev, qdepth, 0)
	if err != nil {
		return ioStats{}, err
	}
	defer q.Term()

	var failed []string
	q.SetCallback(func(ctx *blkio.Ctx, _ any) {
		if err := ctx.CplError(); err != nil {
			failed = append(failed, fmt.Sprintf("lba %d: %v", ctx.Cmd.SLBA(), err))
		}
	}, nil)

	stats := ioStats{blocks: count}
	submit := func(write bool, buf []byte) (time.Duration, error) {
		start := time.Now()
		for lba := uint64(0); lba < count; {
			ctx, err := q.GetCtx()
			if blkio.IsCode(err, blkio.ErrCodeExhausted) {
				if _, err := q.Wait(); err != nil {
					return 0, err
				}
				continue
			}
			if err != nil {
				return 0, err
			}
			block := buf[int(lba)*bs : int(lba+1)*bs]
			if write {
				err = blkio.Write(ctx, dev.NSID(), lba, 0, block, nil)
			} else {
				err = blkio.Read(ctx, dev.NSID(), lba, 0, block, nil)
			}
			if err != nil {
				q.PutCtx(ctx)
				return 0, err
			}
			lba++
		}
		if _, err := q.Drain(); err != nil {
			return 0, err
		}
		return time.Since(start), nil
	}

	if stats.write, err = submit(true, wbuf); err != nil {
		return stats, err
	}
	if stats.read, err = submit(false, rbuf); err != nil {
		return stats, err
	}
	if len(failed) > 0 {
		return stats, fmt.Errorf("%d commands failed, first: %s", len(failed), failed[0])
	}
	if !bytes.Equal(wbuf, rbuf) {
		return stats, errors.New("read back data differs from what was written")
	}
	return stats, nil
}
