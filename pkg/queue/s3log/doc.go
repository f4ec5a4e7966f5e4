// Package s3log archives send log entries to S3-compatible object storage.
//
// Sink implements queue.LogSink. Entries are buffered in memory and written
// as one JSON Lines object per flush under
//
//	{prefix}/{yyyy}/{mm}/{dd}/{uuid}.jsonl
//
// A flush happens when the buffer reaches MaxEntries, when Flush is called
// (the worker runs it periodically) and on Close. Combine it with the
// primary database sink through queue.MultiSink:
//
//	archive, err := s3log.New(cfg)
//	sink := queue.MultiSink(pgStore, archive)
//
// Entries of a failed upload stay buffered for the next flush.
package s3log
