// Command azentiq-memory runs the tiered memory service and provides a
// small CLI for inspecting and mutating memories against the configured
// store.
//
// Usage:
//
//	azentiq-memory serve                        # start the HTTP service
//	azentiq-memory serve --config config.yaml   # with an explicit config file
//	azentiq-memory add --content "..."          # store a memory
//	azentiq-memory get <id>                     # fetch a memory
//	azentiq-memory list                         # list memories
//	azentiq-memory search --query k=v           # search by metadata
//	azentiq-memory update <id> --content "..."  # replace a memory
//	azentiq-memory delete <id>                  # delete a memory
//	azentiq-memory turn --session s --content . # append a conversation turn
//	azentiq-memory prompt --session s --query . # assemble a budgeted prompt
//	azentiq-memory version                      # show version information
package main
