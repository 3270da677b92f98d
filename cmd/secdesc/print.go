package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/go-ntsd/ntsd/ntsd"
)

// aceColor picks a highlight color for an ACE type, matching the
// allow/deny/audit distinction an operator cares about most.
func aceColor(info ntsd.Info) func(format string, a ...interface{}) string {
	switch {
	case color.NoColor:
		return fmt.Sprintf
	case info.Type == "ACCESS_DENIED" || info.Type == "ACCESS_DENIED_OBJECT":
		return color.New(color.FgRed).SprintfFunc()
	case info.Type == "SYSTEM_AUDIT" || info.Type == "SYSTEM_AUDIT_OBJECT":
		return color.New(color.FgYellow).SprintfFunc()
	default:
		return color.New(color.FgGreen).SprintfFunc()
	}
}

func printSD(w io.Writer, sd ntsd.SD) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s %s\n", bold("Control:"), ntsd.ReadableControlFlagsString(sd.ControlFlags()))

	if owner, err := ntsd.BytesToReadable(sd.OwnerSIDBytes()); err == nil {
		fmt.Fprintf(w, "%s  %s\n", bold("Owner:  "), owner)
	}
	if group, err := ntsd.BytesToReadable(sd.GroupSIDBytes()); err == nil {
		fmt.Fprintf(w, "%s  %s\n", bold("Group:  "), group)
	}

	fmt.Fprintln(w)
	printACL(w, sd, ntsd.KindDACL, "DACL")
	fmt.Fprintln(w)
	printACL(w, sd, ntsd.KindSACL, "SACL")
}

func printACL(w io.Writer, sd ntsd.SD, kind ntsd.ACLKind, label string) {
	bold := color.New(color.Bold).SprintFunc()
	acl, err := sd.AclBytes(kind)
	if err != nil {
		fmt.Fprintf(w, "%s error reading %s: %v\n", bold(label+":"), label, err)
		return
	}
	if len(acl) == 0 {
		fmt.Fprintf(w, "%s (absent)\n", bold(label+":"))
		return
	}
	fmt.Fprintf(w, "%s %d ACEs\n", bold(label+":"), acl.AceCount())
	for i, ace := range acl.AceList() {
		info, err := ace.Inspect()
		if err != nil {
			fmt.Fprintf(w, "  [%d] <unreadable: %v>\n", i, err)
			continue
		}
		paint := aceColor(info)
		fmt.Fprintf(w, "  [%d] %s\n", i, paint("%-24s %-16s mask=%s", info.Type, info.Trustee, info.Mask))
		if info.Flags != "" {
			fmt.Fprintf(w, "      flags=%s\n", info.Flags)
		}
	}
}
