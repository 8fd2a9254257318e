package server

// handleSYST handles the SYST command.
// RFC 959 expects a system name from the assigned numbers list; clients use
// it to pick a LIST parser.
func (s *session) handleSYST(Command) {
	s.reply(CodeSystemType, s.server.serverName)
}

func (s *session) handleNOOP(Command) {
	s.reply(CodeOK, "OK.")
}

// handleTYPE records the representation type. It only changes the bytes on
// the wire when ASCII translation is enabled.
func (s *session) handleTYPE(cmd Command) {
	if cmd.Type == TypeUnknown {
		s.reply(CodeNotImplementedParam, "Type not implemented.")
		return
	}
	s.transferType = cmd.Type
	s.reply(CodeOK, "Type set to "+cmd.Type.String()+".")
}
