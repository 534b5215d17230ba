/*
Package catalog manages the model catalog: which upstream models exist,
their lifecycle status, and which groups may use them.

Models are identified by a unique technical name (for example
"azure_gpt-4o"); clients put it in the "model" field of completion
requests. A model serves traffic only while its status is APPROVED.
Access is group-based: a model is usable by a caller when one of the
caller's groups holds an authorization edge to it, with the admin group
implicitly granted every approved model.

Upstream discovery merges through SyncDiscovered, which creates unknown
models in status NEW and refreshes known ones without ever changing their
status or deleting catalog entries.
*/
package catalog
