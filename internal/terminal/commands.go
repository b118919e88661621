package terminal

import "strings"

type CommandKind int

const (
	CmdEmpty CommandKind = iota
	CmdAsk
	CmdReset
	CmdClear
	CmdRetry
	CmdHealth
	CmdUp
	CmdDown
	CmdHelp
	CmdQuit
	CmdUnknown
)

type Command struct {
	Kind CommandKind
	// Arg is the question for CmdAsk, the optional comment for CmdUp and
	// CmdDown, the raw name for CmdUnknown.
	Arg string
}

var commandNames = map[string]CommandKind{
	"/reset":  CmdReset,
	"/clear":  CmdClear,
	"/retry":  CmdRetry,
	"/health": CmdHealth,
	"/up":     CmdUp,
	"/down":   CmdDown,
	"/help":   CmdHelp,
	"/quit":   CmdQuit,
	"/exit":   CmdQuit,
}

// Parse reads one input line. Anything not starting with "/" is a question.
func Parse(line string) Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CmdEmpty}
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdAsk, Arg: line}
	}

	name, rest, _ := strings.Cut(line, " ")
	kind, ok := commandNames[strings.ToLower(name)]
	if !ok {
		return Command{Kind: CmdUnknown, Arg: name}
	}
	return Command{Kind: kind, Arg: strings.TrimSpace(rest)}
}

const HelpText = `Type a question and press Enter. Ctrl-C stops a running answer.
  /retry            resend the last question
  /up [comment]     rate the last answer helpful
  /down [comment]   rate the last answer unhelpful
  /health           check the backend and the LLM
  /reset            start a new session
  /clear            clear the conversation
  /quit             exit`
