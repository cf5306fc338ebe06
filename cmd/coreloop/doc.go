// Command coreloop runs the reconciliation and lifecycle core: it wires
// C1-C7 together from environment configuration and runs until an OS
// interrupt, a fatal error threshold in a child, or an unrecoverable
// shutdown timeout, per §6 and §7.
package main
