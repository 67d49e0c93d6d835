package main

import (
	"github.com/fatih/color"
)

// 终端着色。非 TTY 输出时 color 自动关闭。
var (
	botColor   = color.New(color.FgCyan, color.Bold)
	infoColor  = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
)

func botPrefix(agent string) string {
	return botColor.Sprint("Bot (" + agent + "):")
}

func infoText(s string) string { return infoColor.Sprint(s) }

func warnText(s string) string { return warnColor.Sprint(s) }

func errorText(s string) string { return errorColor.Sprint(s) }
