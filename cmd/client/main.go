package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/peterh/liner"

	"chordring/internal/ringid"
	"chordring/internal/rpcclient"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "address of a ring node (entry point)")
	idBits := flag.Int("idbits", 160, "identifier space width in bits, must match the ring")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	maxHops := flag.Int("maxhops", 64, "max hops a lookup command will walk before giving up")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	sp, err := ringid.NewSpace(*idBits)
	if err != nil {
		log.Fatalf("invalid idbits: %v", err)
	}
	rpc := rpcclient.New(sp)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	if err := rpc.Ping(ctx, *addr); err != nil {
		cancel()
		log.Fatalf("failed to reach node at %s: %v", *addr, err)
	}
	cancel()

	current := *addr
	fmt.Printf("chordring interactive client. Connected to %s\n", current)
	fmt.Println("Available commands: ping/lookup/getrt/getcert/use/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt(fmt.Sprintf("chordring[%s]> ", current))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)

		switch cmd {
		case "ping":
			start := time.Now()
			err := rpc.Ping(ctx, current)
			if err != nil {
				fmt.Printf("ping failed: %v | latency=%s\n", err, time.Since(start))
			} else {
				fmt.Printf("pong | latency=%s\n", time.Since(start))
			}

		case "lookup":
			if len(args) < 2 {
				fmt.Println("usage: lookup <hex-id>")
				cancel()
				continue
			}
			target, err := sp.FromHex(args[1])
			if err != nil {
				fmt.Printf("invalid id: %v\n", err)
				cancel()
				continue
			}
			start := time.Now()
			owner, hops, err := rpc.Lookup(ctx, current, target, *timeout, *maxHops)
			if err != nil {
				fmt.Printf("lookup failed: %v | hops=%d | latency=%s\n", err, hops, time.Since(start))
			} else {
				fmt.Printf("owner: %s (%s) | hops=%d | latency=%s\n", owner.ID, owner.Addr(), hops, time.Since(start))
			}

		case "getrt":
			pred, predValid, err := rpc.GetPredecessor(ctx, current)
			if err != nil {
				fmt.Printf("getrt failed: %v\n", err)
				cancel()
				continue
			}
			list, err := rpc.GetSuccessorList(ctx, current)
			if err != nil {
				fmt.Printf("getrt failed: %v\n", err)
				cancel()
				continue
			}
			fmt.Println("ring state:")
			if predValid {
				fmt.Printf("  predecessor: %s (%s)\n", pred.ID, pred.Addr())
			} else {
				fmt.Println("  predecessor: none")
			}
			fmt.Println("  successors:")
			for i, s := range list {
				fmt.Printf("    [%d] %s (%s)\n", i, s.ID, s.Addr())
			}

		case "getcert":
			cert, err := rpc.GetCert(ctx, current)
			if err != nil {
				fmt.Printf("getcert failed: %v\n", err)
				cancel()
				continue
			}
			fmt.Printf("certificate (%d bytes): %x\n", len(cert), cert)

		case "use":
			if len(args) < 2 {
				fmt.Println("usage: use <host:port>")
				cancel()
				continue
			}
			current = args[1]
			fmt.Printf("now targeting %s\n", current)

		case "exit", "quit":
			cancel()
			return

		default:
			fmt.Printf("unknown command: %s\n", cmd)
		}

		cancel()
	}
}
