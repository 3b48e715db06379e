/*
Package distgrid is the remote-operation invocation core of an in-memory
distributed data grid node. It accepts an abstract Operation targeted at a
partition (or a specific member), delivers it to the responsible cluster
member, collects a single response, and retries transparently on recoverable
failures while honoring a caller-visible deadline. Every data-plane action of
a grid node (put, get, lock, backup replication, cluster join, ...) is routed
through an Invocation Future built on top of this package's collaborators.

The invocation engine itself lives in the invocation subpackage: the Future,
the CallRegistry, the response Inbox, the PartitionTarget/FixedTarget
resolvers and the IsStillExecuting liveness probe.

Operation payloads, the partition table, cluster membership and the packet
transport are external collaborators, specified at their interface in the
grid package and given a default ZeroMQ-backed implementation in transport.
You need libzeromq >= 4 installed to build the transport package.

The security package manages CURVE keypairs for transport encryption, config
collects the tunables a node is constructed from, and cmd/gridnode and
cmd/gridkeygen are the two command-line entry points: a node process and its
keypair generator, respectively.
*/
package distgrid
