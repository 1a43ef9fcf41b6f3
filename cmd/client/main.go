// Command client is an interactive line client for the chat server. The
// first line typed is sent as the nickname; every server line is printed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
)

func main() {
	addr := flag.String("addr", "localhost:12345", "chat server address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Error("connect failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			fmt.Println(sc.Text())
		}
	}()

	go func() {
		stdin := bufio.NewScanner(os.Stdin)
		for stdin.Scan() {
			line := stdin.Text()
			if _, err := fmt.Fprintln(conn, line); err != nil {
				logger.Error("send failed", "error", err)
				break
			}
			if line == "/bye" {
				break
			}
		}
		// The server sees end-of-stream, cleans up and closes its side.
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
	}()

	<-done
}
