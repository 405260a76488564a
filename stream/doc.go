// Package stream implements the progress event envelope streamed to chat
// clients as newline-delimited JSON, the sinks pipelines post events to, and a
// client side Renderer that turns an event stream back into markdown.
//
// Every encoded event is one JSON object followed by "\n" and always carries
// "content_type" and "thread_id":
//
//	{"content_type":"markdown","thread_id":"t1","text":"..."}
//	{"content_type":"annotation_url","thread_id":"t1","start_index":0,"end_index":4,"url":"...","title":"..."}
//	{"content_type":"annotation_file","thread_id":"t1","start_index":0,"end_index":4,"file_id":"...","quote":"..."}
//	{"content_type":"file","thread_id":"t1","file_id":"..."}
//	{"content_type":"sentinel","thread_id":"t1"}
//
// A sentinel ends one segment of a step's output; consumers flush their
// markdown buffer on it.
package stream
