package file

import "golang.org/x/sys/unix"

func volumeUsage(dir string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return Usage{}, err
	}
	bsize := uint64(st.Bsize)
	return Usage{Total: st.Blocks * bsize, Free: st.Bavail * bsize}, nil
}
