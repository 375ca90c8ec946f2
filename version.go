// Package tinker runs Laravel tinker snippets and artisan commands on behalf
// of a host application and returns their captured output.
package tinker

// Version is the tinker release reported to MCP clients and by `tinker version`.
const Version = "0.3.0"
