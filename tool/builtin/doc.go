// Package builtin provides the stock tools an agent can be equipped with:
// terminate, create_chat_completion, file_saver, bash, python_execute and
// str_replace_editor. File oriented tools are confined to a Workspace.
package builtin
