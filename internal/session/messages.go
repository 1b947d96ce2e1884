package session

import (
	"fmt"
	"html"
	"strconv"
)

// Texts sent to users.
const (
	msgHelp             = "Press menu -> file_conversion to start using this bot"
	msgChoosePair       = "Choose available conversion pairs"
	msgSendFile         = "Send file with extension '%s'"
	msgLoading          = "Loading ⏳"
	msgExpectedFile     = "Expected file"
	msgNoPair           = "Something went wrong, stopping conversation"
	msgMismatch         = "Wrong file extension. Expected '%s', got '%s'"
	msgStagingFailed    = "Could not prepare the file for conversion, please try again later"
	msgConversionFailed = "Conversion failed"
	msgConverted        = "Converted file:"
	msgUnknownPair      = "Unknown conversion pair '%s'"
)

func greeting(user User) string {
	name := user.Name
	if name == "" {
		name = "there"
	}
	if user.ID == 0 {
		return fmt.Sprintf("Hi %s!", html.EscapeString(name))
	}
	return fmt.Sprintf(`Hi <a href="tg://user?id=%s">%s</a>!`, strconv.FormatInt(user.ID, 10), html.EscapeString(name))
}

func sendFilePrompt(sourceExt string) string {
	return fmt.Sprintf(msgSendFile, sourceExt)
}

func mismatchReply(expected, observed string) string {
	return fmt.Sprintf(msgMismatch, expected, observed)
}

func unknownPairReply(key string) string {
	return fmt.Sprintf(msgUnknownPair, key)
}
