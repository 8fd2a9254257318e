package server

import "strconv"

// ReplyCode is an FTP reply code (RFC 959 section 4.2).
//
// The first digit classifies the reply: 1 positive preliminary, 2 positive
// completion, 3 positive intermediate, 4 transient negative and 5 permanent
// negative.
type ReplyCode int

// Reply codes used by the server.
const (
	CodeRestartMarker       ReplyCode = 110
	CodeServiceReadyIn      ReplyCode = 120
	CodeDataAlreadyOpen     ReplyCode = 125
	CodeFileStatusOK        ReplyCode = 150
	CodeOK                  ReplyCode = 200
	CodeSuperfluous         ReplyCode = 202
	CodeSystemStatus        ReplyCode = 211
	CodeDirectoryStatus     ReplyCode = 212
	CodeFileStatus          ReplyCode = 213
	CodeHelp                ReplyCode = 214
	CodeSystemType          ReplyCode = 215
	CodeServiceReady        ReplyCode = 220
	CodeClosing             ReplyCode = 221
	CodeDataOpen            ReplyCode = 225
	CodeClosingData         ReplyCode = 226
	CodePassiveMode         ReplyCode = 227
	CodeLoggedIn            ReplyCode = 230
	CodeFileActionOK        ReplyCode = 250
	CodePathCreated         ReplyCode = 257
	CodeNeedPassword        ReplyCode = 331
	CodeNeedAccount         ReplyCode = 332
	CodeFileActionPending   ReplyCode = 350
	CodeServiceNotAvailable ReplyCode = 421
	CodeCantOpenData        ReplyCode = 425
	CodeTransferAborted     ReplyCode = 426
	CodeFileBusy            ReplyCode = 450
	CodeLocalError          ReplyCode = 451
	CodeInsufficientStorage ReplyCode = 452
	CodeSyntaxError         ReplyCode = 500
	CodeSyntaxErrorArgs     ReplyCode = 501
	CodeNotImplemented      ReplyCode = 502
	CodeBadSequence         ReplyCode = 503
	CodeNotImplementedParam ReplyCode = 504
	CodeNotLoggedIn         ReplyCode = 530
	CodeNeedAccountForStore ReplyCode = 532
	CodeFileUnavailable     ReplyCode = 550
	CodePageTypeUnknown     ReplyCode = 551
	CodeExceededStorage     ReplyCode = 552
	CodeFileNameNotAllowed  ReplyCode = 553
)

// Preliminary reports whether the code is a 1xx reply, after which the
// client waits for another reply to the same command.
func (c ReplyCode) Preliminary() bool { return c >= 100 && c < 200 }

// Negative reports whether the code is a 4xx or 5xx reply.
func (c ReplyCode) Negative() bool { return c >= 400 }

// EncodeReply formats a single reply line: "<code> <message>\r\n", or
// "<code>\r\n" when message is empty.
func EncodeReply(code ReplyCode, message string) []byte {
	b := make([]byte, 0, len(message)+6)
	b = strconv.AppendInt(b, int64(code), 10)
	if message != "" {
		b = append(b, ' ')
		b = append(b, message...)
	}
	return append(b, '\r', '\n')
}
