// Package kritor contains the protocol data types exchanged between the
// gateway and remote bot cores. It mirrors the kritor wire representation
// while keeping the surface Go-friendly: exported structs with json tags
// (which the CBOR codec honours), string constants for command names and
// small enumerations for scenes, element kinds and event types.
//
// The package is free of transport logic. The gateway package frames these
// types over gRPC streams, the bot package builds typed command helpers on
// top of CommandRequest / CommandResponse, and plugins consume Event values
// through the service package.
//
// # Conversations
//
// Every inbound event can be reduced to a Conversation: the Contact (scene,
// peer, optional sub-peer) the event happened in and the Sender that caused
// it. ConversationOf is total over every event variant; variants that carry
// no addressable peer report ok == false instead of panicking.
package kritor
