package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Agate-DB/Carnelia-Collab/internal/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4000", "server address")
	user := flag.String("user", "", "user display name")
	room := flag.String("room", "default-room", "room name")
	doc := flag.String("doc", "shared.txt", "document name")
	token := flag.String("token", "", "join token, if the server requires one")
	flag.Parse()

	if *user == "" {
		log.Fatal("missing required -user flag")
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	out := make(chan protocol.ClientMessage, 16)
	go func() {
		for msg := range out {
			line, err := protocol.EncodeClient(msg)
			if err != nil {
				continue
			}
			if _, err := conn.Write(append(line, '\n')); err != nil {
				return
			}
		}
	}()

	out <- protocol.Join{User: *user, Room: *room, Doc: *doc, Token: *token}
	fmt.Printf("[client] joining room %q doc %q as %q\n", *room, *doc, *user)
	fmt.Println("[client] type /help for commands")

	view := &docView{users: make(map[int]string), cursors: make(map[int]int)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(conn)
		sc.Buffer(make([]byte, 64*1024), protocol.MaxLineBytes)
		for sc.Scan() {
			msg, err := protocol.DecodeServer(sc.Bytes())
			if err != nil {
				continue
			}
			view.apply(msg)
		}
		fmt.Println("[client] server closed connection")
	}()

	stdin := bufio.NewScanner(os.Stdin)
loop:
	for stdin.Scan() {
		select {
		case <-done:
			break loop
		default:
		}
		input := strings.TrimSpace(stdin.Text())
		if input == "" {
			continue
		}
		if view.handleLocal(input) {
			continue
		}
		if strings.EqualFold(input, "/quit") {
			break
		}
		if strings.EqualFold(input, "/sync") {
			out <- protocol.SyncRequest{}
			continue
		}
		if msg, ok := parseCommand(input); ok {
			out <- msg
		} else {
			fmt.Println("[client] unknown command, try /help")
		}
	}
	close(out)
}

// docView mirrors the server's view of the document from Welcome, Applied
// and Presence traffic. The server echoes our own operations back as
// Applied, so all mutations funnel through apply.
type docView struct {
	mu      sync.Mutex
	userID  int
	text    string
	version uint64
	users   map[int]string
	cursors map[int]int
}

func (v *docView) apply(msg protocol.ServerMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch m := msg.(type) {
	case protocol.Welcome:
		v.userID = m.UserID
		v.text = m.Text
		v.version = m.Version
		v.users = make(map[int]string, len(m.Users))
		for _, u := range m.Users {
			v.users[u.ID] = u.Name
		}
		v.cursors = make(map[int]int)
		fmt.Printf("[client] welcome user_id=%d version=%d\n", m.UserID, m.Version)
	case protocol.Applied:
		v.applyOp(m.Op)
		v.version = m.Version
		fmt.Printf("[client] applied op from user %d (v%d)\n", m.UserID, m.Version)
	case protocol.Presence:
		v.users = make(map[int]string, len(m.Users))
		for _, u := range m.Users {
			v.users[u.ID] = u.Name
		}
		v.cursors = m.Cursors
		if v.cursors == nil {
			v.cursors = make(map[int]int)
		}
		fmt.Printf("[client] users online: %d\n", len(v.users))
	case protocol.SyncResponse:
		v.text = m.Text
		v.version = m.Version
		fmt.Printf("[client] sync complete (v%d)\n", m.Version)
	case protocol.Error:
		fmt.Printf("[client] error: %s\n", m.Message)
	}
}

func (v *docView) applyOp(op protocol.Op) {
	switch {
	case op.Insert != nil:
		b := clampToBoundary(v.text, op.Insert.Pos)
		v.text = v.text[:b] + op.Insert.Text + v.text[b:]
	case op.Delete != nil:
		start := clampToBoundary(v.text, op.Delete.Pos)
		end := clampToBoundary(v.text, start+op.Delete.Len)
		if start < end {
			v.text = v.text[:start] + v.text[end:]
		}
	}
}

func (v *docView) handleLocal(input string) bool {
	switch strings.ToLower(input) {
	case "/help":
		printHelp()
		return true
	case "/show":
		v.mu.Lock()
		printDocument(v.text)
		v.mu.Unlock()
		return true
	case "/users":
		v.mu.Lock()
		fmt.Println("[client] users:")
		for _, id := range sortedKeys(v.users) {
			fmt.Printf("  %d: %s\n", id, v.users[id])
		}
		v.mu.Unlock()
		return true
	case "/cursors":
		v.mu.Lock()
		fmt.Println("[client] cursors:")
		for _, id := range sortedKeys(v.cursors) {
			name := v.users[id]
			if name == "" {
				name = "unknown"
			}
			fmt.Printf("  %d (%s): %d\n", id, name, v.cursors[id])
		}
		v.mu.Unlock()
		return true
	}
	return false
}

func parseCommand(input string) (protocol.ClientMessage, bool) {
	for _, prefix := range []string{"/insert ", "i "} {
		if rest, ok := strings.CutPrefix(input, prefix); ok {
			return parseInsert(rest)
		}
	}
	for _, prefix := range []string{"/delete ", "d "} {
		if rest, ok := strings.CutPrefix(input, prefix); ok {
			return parseDelete(rest)
		}
	}
	for _, prefix := range []string{"/cursor ", "c "} {
		if rest, ok := strings.CutPrefix(input, prefix); ok {
			return parseCursor(rest)
		}
	}
	if strings.EqualFold(input, "/ping") {
		return protocol.Ping{}, true
	}
	return nil, false
}

func parseInsert(rest string) (protocol.ClientMessage, bool) {
	pos, text, _ := strings.Cut(rest, " ")
	p, err := strconv.Atoi(pos)
	if err != nil {
		return nil, false
	}
	return protocol.Insert{Pos: p, Text: text}, true
}

func parseDelete(rest string) (protocol.ClientMessage, bool) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return nil, false
	}
	p, err1 := strconv.Atoi(fields[0])
	n, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return nil, false
	}
	return protocol.Delete{Pos: p, Len: n}, true
}

func parseCursor(rest string) (protocol.ClientMessage, bool) {
	p, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return nil, false
	}
	return protocol.Cursor{Pos: p}, true
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /insert <pos> <text>   (or: i <pos> <text>)")
	fmt.Println("  /delete <pos> <len>    (or: d <pos> <len>)")
	fmt.Println("  /cursor <pos>          (or: c <pos>)")
	fmt.Println("  /sync")
	fmt.Println("  /show")
	fmt.Println("  /users")
	fmt.Println("  /cursors")
	fmt.Println("  /ping")
	fmt.Println("  /quit")
}

func printDocument(text string) {
	fmt.Printf("[doc] %d bytes\n", len(text))
	n := 0
	for _, line := range strings.Split(text, "\n") {
		n++
		fmt.Printf("%4d | %s\n", n, line)
	}
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func clampToBoundary(s string, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(s) {
		pos = len(s)
	}
	for pos > 0 && pos < len(s) && !utf8.RuneStart(s[pos]) {
		pos--
	}
	return pos
}
