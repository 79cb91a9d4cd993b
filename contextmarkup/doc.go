// Package contextmarkup serializes, recognizes and filters the mcp:context
// markup that carries structured context inside LLM conversation text.
//
// Two surface forms exist. A block wraps a JSON body:
//
//	<mcp:context type="resource" uri="am7://reminder/u1" ephemeral="true">{"schema":"urn:am7:narrative:reminder","data":{...}}</mcp:context>
//
// An inline reference is self-closing and names a media resource:
//
//	<mcp:resource uri="am7://media/img-1" tags="photo,portrait" />
//
// Builder produces both forms. Parse finds them in arbitrary text, in source
// order, with byte offsets. Filter sorts occurrences into citation, reminder,
// keyframe, metrics, reasoning and media buckets and produces the text a
// human should see: ephemeral blocks removed, inline media removed or
// rendered as an img element.
//
// Nothing here returns an error for malformed markup; anything that does not
// match one of the two forms is ordinary text.
package contextmarkup
