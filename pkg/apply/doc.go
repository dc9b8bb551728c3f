// Package apply submits resources to the cluster API. Submission is
// idempotent: a content hash stamped on each applied object lets a
// repeat apply of an identical manifest report Unchanged without a
// write, while a differing spec goes through server-side apply and
// surfaces ownership conflicts as ConflictError.
package apply
