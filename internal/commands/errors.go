package commands

import (
	"errors"
	"strings"
)

// cobra reports argument problems as plain errors; these prefixes are how
// they are told apart from command failures.
var usagePrefixes = []string{
	"unknown command ",
	"unknown flag: ",
	"unknown shorthand flag: ",
	"flag needs an argument: ",
	"invalid argument ",
	"required flag(s) ",
	"accepts ",
	"requires at least ",
	"requires at most ",
	"if any flags in the group ",
}

func isUsageError(err error) bool {
	if err == nil {
		return false
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return true
	}
	msg := err.Error()
	for _, prefix := range usagePrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
