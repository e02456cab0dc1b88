package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"hdxplay/internal/codec"

	"github.com/chzyer/readline"
)

const (
	socket_file        = "/tmp/hdxplay.sock"
	version_major      = 1
	version_minor      = 0
	app_name           = "HDXPlay-Client"
	developer_title    = "Developer Hardiyanto"
	developer_subtitle = "Build 27/12/2025 Ebiet Version"
	send_chunk         = 8192
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("ABOUT"),
	readline.PcItem("PING"),
	readline.PcItem("WHOAMI"),
	readline.PcItem("STATUS"),
	readline.PcItem("METER"),
	readline.PcItem("ALERTS"),
	readline.PcItem("START"),
	readline.PcItem("STOP"),
	readline.PcItem("ALERT"),
	readline.PcItem("VOLUME"),
	readline.PcItem("SEND"),
	readline.PcItem("QUIT"),
)

func main() {
	socket := flag.String("socket", socket_file, "control socket")
	flag.Parse()

	fmt.Printf("\n%s V.%d.%d\n", app_name, version_major, version_minor)
	fmt.Printf("%s %s\n", developer_title, developer_subtitle)
	conn, err := net.Dial("unix", *socket)
	if err != nil {
		fmt.Printf("[FAIL] %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hdx> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "QUIT",
	})
	if err != nil {
		fmt.Printf("[FAIL] %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("CONNECTED")
	fmt.Println(`Type IPC command, "SEND <file> [id]" to stream a file, "QUIT" to exit`)
	fmt.Println()

	// ============================
	// IPC → STDOUT
	// ============================
	go func() {
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			fmt.Fprintln(rl.Stdout(), "RECV:", sc.Text())
		}
		fmt.Fprintln(rl.Stdout(), "SOCKET CLOSED")
		rl.Close()
	}()

	// ============================
	// STDIN → IPC (interactive)
	// ============================
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch strings.ToUpper(fields[0]) {
		case "QUIT":
			fmt.Println("Bye.")
			return
		case "SEND":
			if len(fields) < 2 {
				fmt.Println("usage: SEND <file> [id]")
				continue
			}
			id := "-"
			if len(fields) > 2 {
				id = fields[2]
			}
			if err := sendFile(conn, fields[1], id); err != nil {
				fmt.Println("SEND ERROR:", err)
			}
			continue
		}

		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			fmt.Println("WRITE ERROR:", err)
			return
		}
	}
}

// sendFile starts a session named after the file when id is "-" and streams
// the file as WRITE commands, the last one with eof set.
func sendFile(conn net.Conn, path, id string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if id == "-" {
		id = filepath.Base(path)
		kind, err := codec.KindOf(path)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(conn, "START %s %s\n", id, kind); err != nil {
			return err
		}
	}

	for off := 0; off < len(data); off += send_chunk {
		end := min(off+send_chunk, len(data))
		eof := 0
		if end == len(data) {
			eof = 1
		}
		if _, err := fmt.Fprintf(conn, "WRITE %s %d %d\n", id, eof, end-off); err != nil {
			return err
		}
		if _, err := conn.Write(data[off:end]); err != nil {
			return err
		}
	}
	fmt.Printf(" >> %d bytes queued as %s\n", len(data), id)
	return nil
}
