package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Verb identifies a command understood by the session.
type Verb int

// Recognized verbs. VerbUnknown carries any other verb; it is not an error.
const (
	VerbUnknown Verb = iota
	VerbAUTH
	VerbUSER
	VerbPASS
	VerbCWD
	VerbCDUP
	VerbPWD
	VerbLIST
	VerbPASV
	VerbPORT
	VerbRETR
	VerbSTOR
	VerbMKD
	VerbRMD
	VerbTYPE
	VerbSYST
	VerbNOOP
	VerbQUIT
)

var verbNames = map[string]Verb{
	"AUTH": VerbAUTH,
	"USER": VerbUSER,
	"PASS": VerbPASS,
	"CWD":  VerbCWD,
	"CDUP": VerbCDUP,
	"PWD":  VerbPWD,
	"LIST": VerbLIST,
	"PASV": VerbPASV,
	"PORT": VerbPORT,
	"RETR": VerbRETR,
	"STOR": VerbSTOR,
	"MKD":  VerbMKD,
	"RMD":  VerbRMD,
	"TYPE": VerbTYPE,
	"SYST": VerbSYST,
	"NOOP": VerbNOOP,
	"QUIT": VerbQUIT,
}

func (v Verb) String() string {
	for name, verb := range verbNames {
		if verb == v {
			return name
		}
	}
	return "UNKN"
}

// TransferType is the representation type selected with TYPE.
type TransferType int

const (
	TypeASCII TransferType = iota
	TypeImage
	TypeUnknown
)

func (t TransferType) String() string {
	switch t {
	case TypeASCII:
		return "A"
	case TypeImage:
		return "I"
	}
	return "?"
}

// listFlags are the LIST options that carry meaning. Any other token starting
// with '-' is dropped.
var listFlags = map[string]bool{
	"-a":  true,
	"-l":  true,
	"-la": true,
	"-al": true,
}

// minActivePort is the lowest port PORT may name. Privileged ports are refused.
const minActivePort = 1025

// Command is a decoded control line.
type Command struct {
	Verb Verb

	// Name is the verb as received: upper-cased for known verbs, verbatim
	// for VerbUnknown.
	Name string

	// Arg is everything after the first space, untouched.
	Arg string

	// Path is set for CWD, LIST, RETR, STOR, MKD and RMD.
	Path string

	// ListFlag is a recognized LIST option such as "-a" or "-la".
	ListFlag string

	// Host and Port are set for PORT.
	Host net.IP
	Port int

	// Type is set for TYPE.
	Type TransferType
}

// ParseCommand decodes one control line. The trailing CRLF, if any, is
// ignored. An unrecognized verb yields a VerbUnknown command and no error.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	verb, arg, _ := strings.Cut(line, " ")
	if verb == "" {
		return Command{}, &ParseError{Reason: "empty command"}
	}

	name := strings.ToUpper(verb)
	v, ok := verbNames[name]
	if !ok {
		return Command{Verb: VerbUnknown, Name: verb, Arg: arg}, nil
	}

	cmd := Command{Verb: v, Name: name, Arg: arg}
	switch v {
	case VerbCWD, VerbRETR, VerbSTOR, VerbMKD, VerbRMD:
		if arg == "" {
			return Command{}, &ParseError{Verb: name, Reason: "missing path argument"}
		}
		cmd.Path = arg
	case VerbLIST:
		cmd.ListFlag, cmd.Path = parseListArg(arg)
	case VerbPORT:
		host, port, err := parsePortArg(arg)
		if err != nil {
			return Command{}, &ParseError{Verb: name, Reason: err.Error()}
		}
		cmd.Host, cmd.Port = host, port
	case VerbTYPE:
		if arg == "" {
			return Command{}, &ParseError{Verb: name, Reason: "missing type code"}
		}
		switch arg[0] {
		case 'A', 'a':
			cmd.Type = TypeASCII
		case 'I', 'i':
			cmd.Type = TypeImage
		default:
			cmd.Type = TypeUnknown
		}
	}
	return cmd, nil
}

func parseListArg(arg string) (flag, path string) {
	if strings.HasPrefix(arg, "-") {
		token, rest, _ := strings.Cut(arg, " ")
		if listFlags[strings.ToLower(token)] {
			flag = strings.ToLower(token)
		}
		arg = strings.TrimLeft(rest, " ")
	}
	return flag, arg
}

// parsePortArg decodes "h1,h2,h3,h4,p1,p2". The port is p1*256+p2.
func parsePortArg(arg string) (net.IP, int, error) {
	fields := strings.Split(arg, ",")
	if len(fields) != 6 {
		return nil, 0, fmt.Errorf("expected six comma-separated fields, got %d", len(fields))
	}

	var octets [6]byte
	for i, f := range fields {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return nil, 0, fmt.Errorf("field %d is not a byte value", i+1)
		}
		octets[i] = byte(n)
	}

	port := int(octets[4])<<8 | int(octets[5])
	if port < minActivePort {
		return nil, 0, fmt.Errorf("port %d is privileged", port)
	}
	return net.IPv4(octets[0], octets[1], octets[2], octets[3]), port, nil
}
