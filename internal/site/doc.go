// Package site orchestrates full static builds: content scanning, page
// rendering, bundling, asset hashing and artifact generation, driven by a
// staged pipeline that records per-stage timing and per-page errors.
package site
