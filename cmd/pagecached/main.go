// Command pagecached is an interactive shell over a pagecache.Cache
// backed by the file serializer and reference LRU evicter, useful for
// poking at the page layer's behavior by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/riverstonedb/pagecache/core/pagecache"
	"github.com/riverstonedb/pagecache/core/pagecache/evicter"
	"github.com/riverstonedb/pagecache/core/pagecache/serializer"
	"github.com/riverstonedb/pagecache/pkg/config"
	"github.com/riverstonedb/pagecache/pkg/logger"
	"github.com/riverstonedb/pagecache/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pagecached: logger setup:", err)
		os.Exit(1)
	}
	defer log.Sync()

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("telemetry setup", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	if err := os.MkdirAll(cfg.Pool.DataDir, 0o755); err != nil {
		log.Fatal("creating data dir", zap.Error(err))
	}

	ser, err := serializer.Open(cfg.Pool.DataDir+"/blocks.db", cfg.Pool.BlockSize)
	if err != nil {
		log.Fatal("opening serializer", zap.Error(err))
	}
	defer ser.Close()

	ev := evicter.New(cfg.Pool.MaxTrackedPages, evicter.WithLogger(log))

	metrics, err := pagecache.NewMetrics(tel.Meter)
	if err != nil {
		log.Fatal("registering metrics", zap.Error(err))
	}

	cache := pagecache.NewCache(ser, ev,
		pagecache.WithLogger(log),
		pagecache.WithTracer(tel.Tracer),
		pagecache.WithMetrics(metrics),
		pagecache.WithIOAccount(pagecache.NewIOAccount(cfg.Pool.IOAccountWeight)),
	)
	cache.Drainer().SetLogger(log)
	defer func() {
		cache.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.Drainer().Wait(ctx); err != nil {
			log.Warn("shutdown: in-flight loads did not drain in time", zap.Error(err))
		}
	}()

	sh := &shell{cache: cache, serializer: ser, log: log}
	sh.run()
}

// shell holds the small amount of state an interactive session needs:
// which block IDs it has open Ptrs on, so "read"/"write"/"close" can
// refer to them by a short local handle instead of a raw block ID.
type shell struct {
	cache      *pagecache.Cache
	serializer *serializer.FileSerializer
	log        *zap.Logger

	open map[string]*pagecache.Ptr
}

func (s *shell) run() {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "pagecache> ",
		HistoryFile: "/tmp/pagecached_history",
	})
	if err != nil {
		s.log.Fatal("readline setup", zap.Error(err))
	}
	defer rl.Close()

	s.open = make(map[string]*pagecache.Ptr)
	fmt.Println("pagecached. Type 'help' for commands, 'quit' to exit.")

	for {
		line, err := rl.Readline()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := s.dispatch(fields); err != nil {
			if err == errQuit {
				return
			}
			fmt.Println("error:", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func (s *shell) dispatch(fields []string) error {
	switch fields[0] {
	case "help":
		fmt.Println("commands: put <text> | open <handle> <block_id> | read <handle> | write <handle> <text> | close <handle> | reclaim <bytes> | quit")
	case "quit", "exit":
		return errQuit
	case "put":
		return s.cmdPut(fields[1:])
	case "open":
		return s.cmdOpen(fields[1:])
	case "read":
		return s.cmdRead(fields[1:])
	case "write":
		return s.cmdWrite(fields[1:])
	case "close":
		return s.cmdClose(fields[1:])
	case "reclaim":
		return s.cmdReclaim(fields[1:])
	default:
		fmt.Println("unknown command; try 'help'")
	}
	return nil
}

func (s *shell) cmdPut(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: put <text>")
	}
	data := []byte(strings.Join(args, " "))
	id, err := s.serializer.Put(data)
	if err != nil {
		return err
	}
	fmt.Printf("block %d\n", id)
	return nil
}

func (s *shell) cmdOpen(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: open <handle> <block_id>")
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad block id: %w", err)
	}
	if _, exists := s.open[args[0]]; exists {
		return fmt.Errorf("handle %q already open", args[0])
	}
	s.open[args[0]] = s.cache.NewPtrFromBlockID(pagecache.BlockID(id))
	return nil
}

func (s *shell) cmdRead(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: read <handle>")
	}
	ptr, ok := s.open[args[0]]
	if !ok {
		return fmt.Errorf("no such handle %q", args[0])
	}
	acq := s.cache.NewAcq(ptr, pagecache.ReadAccess)
	defer acq.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	buf, err := acq.ReadBuf(ctx)
	if err != nil {
		return err
	}
	sz, err := acq.BufSize(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%q\n", string(buf[:sz]))
	return nil
}

func (s *shell) cmdWrite(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write <handle> <text>")
	}
	ptr, ok := s.open[args[0]]
	if !ok {
		return fmt.Errorf("no such handle %q", args[0])
	}
	acq := s.cache.NewAcq(ptr, pagecache.WriteAccess)
	defer acq.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	buf, err := acq.WriteBuf(ctx)
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")
	if len(text) > len(buf) {
		return fmt.Errorf("text too long for a %d byte block", len(buf))
	}
	copy(buf, text)
	fmt.Println("written in memory (writeback to disk is out of scope here)")
	return nil
}

func (s *shell) cmdClose(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: close <handle>")
	}
	ptr, ok := s.open[args[0]]
	if !ok {
		return fmt.Errorf("no such handle %q", args[0])
	}
	ptr.Reset()
	delete(s.open, args[0])
	return nil
}

func (s *shell) cmdReclaim(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: reclaim <bytes>")
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("bad byte count: %w", err)
	}
	evicted := s.cache.Reclaim(uint32(n))
	fmt.Printf("evicted %d pages\n", evicted)
	return nil
}
