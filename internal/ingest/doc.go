// Package ingest drives dropped files through upload, text extraction and
// indexing. Each file becomes an UploadItem tracked in an observable store;
// items run concurrently and settle independently into success, partial or
// error. A Guard ties every in-flight transfer and pending timer to the
// lifetime of the owning view so teardown cancels them and freezes state.
package ingest
