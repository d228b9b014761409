// Package contracts defines the message types exchanged between SDK
// clients, the orchestrator, and worker processes, together with the
// workflow type catalog and the job parameter mapping.
//
// Messages are serialized as JSON. The broker layer never inspects them:
// it only moves the encoded bytes.
package contracts
